package fleet

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/storage"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

// AddDevice checks that cred works and stores it under a new device.
//
// The credential is validated, the port probed, and a full authentication
// performed (the connection is closed right after) before anything is
// written. Returns the new device id.
func (s *Service) AddDevice(name, description string, cred sshutil.Credential) (uint, error) {
	if err := cred.Validate(); err != nil {
		return 0, err
	}

	target := cred
	if s.cfg.SSHConfigPath != "" {
		if resolved, ok := sshutil.ResolveAlias(s.cfg.SSHConfigPath, cred); ok {
			target = resolved
		}
	}
	if _, err := s.prober.Probe(target.Host, target.Port); err != nil {
		return 0, err
	}

	conn, err := s.transport.Authenticate(cred)
	if err != nil {
		return 0, sshutil.Classify(err)
	}
	if err := conn.Close(); err != nil {
		s.log.Debug("closing verification connection to %s: %v", cred.Host, err)
	}

	id, err := s.store.CreateDevice(name, description, cred)
	if err != nil {
		return 0, err
	}
	s.log.Info("added device %d (%s) at %s", id, name, cred.Address())
	return id, nil
}

// RemoveDevice stops the device's stream, disconnects its session, and
// deletes it with its credential.
func (s *Service) RemoveDevice(id uint) error {
	sid := sessionID(id)
	s.teardown(sid)
	if err := s.registry.Disconnect(sid); err != nil && !errors.IsCode(err, errors.ErrNotFound) {
		return err
	}
	return s.store.DeleteDevice(id)
}

// ListDevices returns every stored device.
func (s *Service) ListDevices() ([]storage.Device, error) {
	return s.store.ListDevices()
}

// Device returns one stored device.
func (s *Service) Device(id uint) (*storage.Device, error) {
	return s.store.GetDevice(id)
}

// Credential returns the credential stored for a device.
func (s *Service) Credential(id uint) (sshutil.Credential, error) {
	return s.store.CredentialFor(id)
}

// ConnectDevice opens a session for a stored device, keyed by its id. A
// device that is already connected is returned as is without touching the
// database.
func (s *Service) ConnectDevice(id uint) (string, error) {
	sid := sessionID(id)
	if s.registry.IsAlive(sid) {
		return sid, nil
	}

	cred, err := s.store.CredentialFor(id)
	if err != nil {
		return "", err
	}

	if _, err := s.registry.Connect(sid, cred); err != nil {
		return "", err
	}

	if err := s.store.TouchDevice(id, s.clock()); err != nil {
		s.log.Warn("recording connection time for device %d: %v", id, err)
	}
	return sid, nil
}

// ConnectCredential opens a session for a credential that isn't stored and
// returns its generated session id.
func (s *Service) ConnectCredential(cred sshutil.Credential) (string, error) {
	return s.registry.Connect(uuid.NewString(), cred)
}

// Disconnect stops any stream on the session and closes it.
func (s *Service) Disconnect(sessionID string) error {
	s.teardown(sessionID)
	return s.registry.Disconnect(sessionID)
}

// teardown stops the session's stream. The sampler keeps its CPU counters
// so a reconnect reports usage over the gap.
func (s *Service) teardown(sessionID string) {
	s.streams.Stop(sessionID)
}

func sessionID(deviceID uint) string {
	return strconv.FormatUint(uint64(deviceID), 10)
}
