//go:build !portaudio

package audio

import "context"

// System is the host audio backend. This build has none; build with
// -tags portaudio for real devices.
type System struct{}

// OpenSystem returns the stub backend.
func OpenSystem() (*System, error) { return &System{}, nil }

func (*System) Close() error { return nil }

func (*System) OpenInput(int, int, int) (InputStream, error) { return nil, ErrNoDevice }

func (*System) Devices() ([]DeviceInfo, error) { return nil, nil }

func (*System) Play(context.Context, Buffer) error { return ErrNoDevice }
