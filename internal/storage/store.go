// Package storage persists devices, their credentials, telemetry samples,
// and system information in SQLite through gorm.
package storage

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/orion-fleet/orion/internal/control"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/telemetry"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

// DefaultSampleLimit is how many samples ReadSamples returns when the filter
// sets no limit.
const DefaultSampleLimit = 120

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the device database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, storageErr(err, "create database directory")
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, storageErr(err, "open database "+path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, storageErr(err, "get sql.DB")
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()
		return nil, storageErr(err, "set WAL mode")
	}

	if err := db.AutoMigrate(&Device{}, &Credential{}, &DeviceStat{}, &SystemInfo{}); err != nil {
		_ = sqlDB.Close()
		return nil, storageErr(err, "auto-migrate")
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDevice stores a device and its credential in one transaction and
// returns the new device id.
func (s *Store) CreateDevice(name, description string, cred sshutil.Credential) (uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New(errors.ErrConfig, "device name is required", "")
	}

	device := &Device{Name: name, Description: description}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(device).Error; err != nil {
			return err
		}
		return tx.Create(credentialFrom(device.ID, cred)).Error
	})
	if err != nil {
		return 0, storageErr(err, "create device "+name)
	}
	return device.ID, nil
}

// ListDevices returns all devices ordered by id.
func (s *Store) ListDevices() ([]Device, error) {
	var devices []Device
	if err := s.db.Order("id ASC").Find(&devices).Error; err != nil {
		return nil, storageErr(err, "list devices")
	}
	return devices, nil
}

// GetDevice returns one device.
func (s *Store) GetDevice(id uint) (*Device, error) {
	var device Device
	if err := s.db.First(&device, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, deviceNotFound(id)
		}
		return nil, storageErr(err, "get device")
	}
	return &device, nil
}

// DeleteDevice removes a device and its credential. Stored samples are kept
// until retention prunes them.
func (s *Store) DeleteDevice(id uint) error {
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Device{}, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return tx.Where("device_id = ?", id).Delete(&Credential{}).Error
	})
	if err != nil {
		return storageErr(err, "delete device")
	}
	if deleted == 0 {
		return deviceNotFound(id)
	}
	return nil
}

// TouchDevice records a successful connection at t.
func (s *Store) TouchDevice(id uint, t time.Time) error {
	ms := t.UnixMilli()
	err := s.db.Model(&Device{}).Where("id = ?", id).Update("last_connected_at", ms).Error
	if err != nil {
		return storageErr(err, "update device")
	}
	return nil
}

// CredentialFor returns the credential stored for a device.
func (s *Store) CredentialFor(deviceID uint) (sshutil.Credential, error) {
	var cred Credential
	err := s.db.Where("device_id = ?", deviceID).First(&cred).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return sshutil.Credential{}, errors.New(errors.ErrNotFound,
				fmt.Sprintf("no credential for device %d", deviceID),
				"Add the device again with: orion device add")
		}
		return sshutil.Credential{}, storageErr(err, "load credential")
	}
	return cred.SSH(), nil
}

// InsertSample stores a telemetry sample. sample.DeviceID must be a numeric
// device id.
func (s *Store) InsertSample(sample telemetry.Sample) error {
	deviceID, err := ParseDeviceID(sample.DeviceID)
	if err != nil {
		return err
	}

	row := &DeviceStat{
		TS:         sample.Timestamp,
		CPU:        sample.CPUPercent,
		RAMUsedMB:  sample.RAMUsedMB,
		RAMTotalMB: sample.RAMTotalMB,
		GPUUtil:    sample.GPUUtil,
		GPUTempC:   sample.GPUTempC,
		DeviceID:   deviceID,
	}
	if err := s.db.Create(row).Error; err != nil {
		return storageErr(err, "insert sample")
	}
	return nil
}

// SampleFilter narrows ReadSamples. Zero values mean no bound.
type SampleFilter struct {
	Limit   int
	StartTS int64 // inclusive, unix milliseconds
	EndTS   int64 // inclusive, unix milliseconds
}

// ReadSamples returns the newest samples for a device matching f, in
// chronological order.
func (s *Store) ReadSamples(deviceID uint, f SampleFilter) ([]telemetry.Sample, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}

	q := s.db.Where("device_id = ?", deviceID)
	if f.StartTS > 0 {
		q = q.Where("ts >= ?", f.StartTS)
	}
	if f.EndTS > 0 {
		q = q.Where("ts <= ?", f.EndTS)
	}

	var rows []DeviceStat
	if err := q.Order("ts DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, storageErr(err, "read samples")
	}

	samples := make([]telemetry.Sample, len(rows))
	for i, row := range rows {
		samples[len(rows)-1-i] = row.sample()
	}
	return samples, nil
}

// PruneSamples deletes samples older than before and returns how many went.
func (s *Store) PruneSamples(before time.Time) (int64, error) {
	res := s.db.Where("ts < ?", before.UnixMilli()).Delete(&DeviceStat{})
	if res.Error != nil {
		return 0, storageErr(res.Error, "prune samples")
	}
	return res.RowsAffected, nil
}

// Counts reports how many devices and samples are stored.
func (s *Store) Counts() (devices, samples int64, err error) {
	if err := s.db.Model(&Device{}).Count(&devices).Error; err != nil {
		return 0, 0, storageErr(err, "count devices")
	}
	if err := s.db.Model(&DeviceStat{}).Count(&samples).Error; err != nil {
		return 0, 0, storageErr(err, "count samples")
	}
	return devices, samples, nil
}

// UpsertSystemInfo stores info as the device's current system information.
func (s *Store) UpsertSystemInfo(deviceID uint, info *control.SystemInfo) error {
	row := &SystemInfo{
		DeviceID:  deviceID,
		Hostname:  info.Hostname,
		OS:        info.OS,
		Kernel:    info.Kernel,
		CUDA:      info.CUDA,
		JetPack:   info.JetPack,
		UptimeSec: int64(info.UptimeSec),
		UpdatedAt: info.UpdatedAt,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"hostname", "os", "kernel", "cuda", "jetpack", "uptime_sec", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return storageErr(err, "store system info")
	}
	return nil
}

// GetSystemInfo returns the stored system information for a device, or nil
// when none has been fetched yet.
func (s *Store) GetSystemInfo(deviceID uint) (*control.SystemInfo, error) {
	var row SystemInfo
	err := s.db.Where("device_id = ?", deviceID).Limit(1).Find(&row).Error
	if err != nil {
		return nil, storageErr(err, "load system info")
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.info(), nil
}

// ParseDeviceID converts a session id back to a device id.
func ParseDeviceID(id string) (uint, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' is not a device id", id),
			"Device ids are the positive numbers shown by: orion device list")
	}
	return uint(n), nil
}

func deviceNotFound(id uint) error {
	return errors.New(errors.ErrNotFound,
		fmt.Sprintf("device %d not found", id),
		"List registered devices with: orion device list")
}

func storageErr(err error, what string) error {
	return errors.WrapWithCode(err, errors.ErrStorage, "storage: "+what, "")
}
