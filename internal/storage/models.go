package storage

import (
	"strconv"
	"time"

	"github.com/orion-fleet/orion/internal/control"
	"github.com/orion-fleet/orion/internal/telemetry"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

// Device is a registered board.
type Device struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"not null" json:"name"`
	Description     string    `json:"description"`
	Notes           string    `json:"notes"`
	LastConnectedAt *int64    `json:"last_connected_at"` // unix milliseconds
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Device) TableName() string { return "device" }

// SessionID is the registry key used for the device's session.
func (d Device) SessionID() string { return strconv.FormatUint(uint64(d.ID), 10) }

// Credential holds how to reach a device. One per device.
type Credential struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Host           string `gorm:"not null" json:"host"`
	Port           int    `gorm:"not null" json:"port"`
	Username       string `gorm:"not null" json:"username"`
	AuthType       string `gorm:"not null" json:"auth_type"`
	Password       string `json:"-"`
	PrivateKeyPath string `json:"private_key_path"`
	DeviceID       uint   `gorm:"uniqueIndex;not null" json:"device_id"`
}

func (Credential) TableName() string { return "credential" }

// SSH converts the row into a transport credential.
func (c Credential) SSH() sshutil.Credential {
	return sshutil.Credential{
		Host:           c.Host,
		Port:           c.Port,
		Username:       c.Username,
		AuthType:       sshutil.AuthType(c.AuthType),
		Password:       c.Password,
		PrivateKeyPath: c.PrivateKeyPath,
	}
}

func credentialFrom(deviceID uint, cred sshutil.Credential) *Credential {
	return &Credential{
		Host:           cred.Host,
		Port:           cred.Port,
		Username:       cred.Username,
		AuthType:       string(cred.AuthType),
		Password:       cred.Password,
		PrivateKeyPath: cred.PrivateKeyPath,
		DeviceID:       deviceID,
	}
}

// DeviceStat is one stored telemetry sample.
type DeviceStat struct {
	ID         uint     `gorm:"primaryKey;autoIncrement"`
	TS         int64    `gorm:"column:ts;not null;index:idx_device_stats_device_ts,priority:2"`
	CPU        float64  `gorm:"not null"`
	RAMUsedMB  int64    `gorm:"column:ram_used_mb;not null"`
	RAMTotalMB int64    `gorm:"column:ram_total_mb;not null"`
	GPUUtil    *float64 `gorm:"column:gpu_util"`
	GPUTempC   *float64 `gorm:"column:gpu_temp_c"`
	PowerMode  *string
	DeviceID   uint `gorm:"not null;index:idx_device_stats_device_ts,priority:1"`
}

func (DeviceStat) TableName() string { return "device_stats" }

func (s DeviceStat) sample() telemetry.Sample {
	return telemetry.Sample{
		Timestamp:  s.TS,
		CPUPercent: s.CPU,
		RAMUsedMB:  s.RAMUsedMB,
		RAMTotalMB: s.RAMTotalMB,
		GPUUtil:    s.GPUUtil,
		GPUTempC:   s.GPUTempC,
		DeviceID:   strconv.FormatUint(uint64(s.DeviceID), 10),
	}
}

// SystemInfo is the last fetched system information for a device.
type SystemInfo struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	DeviceID  uint    `gorm:"uniqueIndex;not null"`
	Hostname  string  `gorm:"not null"`
	OS        string  `gorm:"column:os;not null"`
	Kernel    string  `gorm:"not null"`
	CUDA      *string `gorm:"column:cuda"`
	JetPack   *string `gorm:"column:jetpack"`
	UptimeSec int64   `gorm:"not null"`
	UpdatedAt int64   `gorm:"not null;autoUpdateTime:false"`
}

func (SystemInfo) TableName() string { return "system_info" }

func (s SystemInfo) info() *control.SystemInfo {
	return &control.SystemInfo{
		Hostname:  s.Hostname,
		OS:        s.OS,
		Kernel:    s.Kernel,
		CUDA:      s.CUDA,
		JetPack:   s.JetPack,
		UptimeSec: uint64(s.UptimeSec),
		UpdatedAt: s.UpdatedAt,
	}
}
