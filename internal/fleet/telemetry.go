package fleet

import (
	"context"
	"time"

	"github.com/orion-fleet/orion/internal/control"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/storage"
	"github.com/orion-fleet/orion/internal/stream"
	"github.com/orion-fleet/orion/internal/telemetry"
)

// SampleOnce takes one sample from a session and stores it. A storage
// failure is logged; the sample is still returned. Sessions that aren't
// stored devices are sampled but not persisted.
func (s *Service) SampleOnce(ctx context.Context, sessionID string) (*telemetry.Sample, error) {
	sample, err := s.sampler.Sample(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.persist(*sample)
	return sample, nil
}

func (s *Service) persist(sample telemetry.Sample) {
	if _, err := storage.ParseDeviceID(sample.DeviceID); err != nil {
		s.log.Debug("session %s is not a stored device, sample not persisted", sample.DeviceID)
		return
	}
	if err := s.store.InsertSample(sample); err != nil {
		s.log.Warn("storing sample for device %s: %v", sample.DeviceID, err)
	}
}

// StartStream samples a session every interval, storing each sample and
// broadcasting it to subscribers. A zero interval uses the configured
// default. Starting a running stream does nothing.
func (s *Service) StartStream(sessionID string, interval time.Duration) error {
	if !s.registry.IsAlive(sessionID) {
		return errors.NotFound(sessionID)
	}
	if interval == 0 {
		interval = s.cfg.StreamInterval
	}
	pub := stream.Tee(stream.PublisherFunc(s.persist), s.broadcaster)
	return s.streams.Start(sessionID, interval, pub)
}

// StopStream stops a session's stream and waits for it to exit. Stopping a
// stream that isn't running succeeds.
func (s *Service) StopStream(sessionID string) {
	s.streams.Stop(sessionID)
}

// Streams returns the sessions with running streams.
func (s *Service) Streams() []string {
	return s.streams.List()
}

// Subscribe returns a channel of every streamed sample and a func to stop
// receiving. A buffer below 1 uses the configured size.
func (s *Service) Subscribe(buffer int) (<-chan telemetry.Sample, func()) {
	if buffer < 1 {
		buffer = s.cfg.BroadcastBuffer
	}
	return s.broadcaster.Subscribe(buffer)
}

// Samples returns stored samples for a device in chronological order.
func (s *Service) Samples(deviceID uint, filter storage.SampleFilter) ([]telemetry.Sample, error) {
	return s.store.ReadSamples(deviceID, filter)
}

// FetchSystemInfo reads system information from the device and stores it
// when the session belongs to a stored device. Storage failures are logged.
func (s *Service) FetchSystemInfo(ctx context.Context, sessionID string) (*control.SystemInfo, error) {
	info, err := s.control.SystemInfo(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if deviceID, err := storage.ParseDeviceID(sessionID); err == nil {
		if err := s.store.UpsertSystemInfo(deviceID, info); err != nil {
			s.log.Warn("storing system info for device %d: %v", deviceID, err)
		}
	}
	return info, nil
}

// StoredSystemInfo returns the last stored system information for a
// device, or nil when none was fetched.
func (s *Service) StoredSystemInfo(deviceID uint) (*control.SystemInfo, error) {
	return s.store.GetSystemInfo(deviceID)
}
