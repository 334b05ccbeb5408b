// Package audio records microphone chunks and plays clips using PortAudio.
package audio

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"
)

func inputDevice(nameOrID string) (*portaudio.DeviceInfo, error) {
	if nameOrID == "" {
		d, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("get default audio input device: %w", err)
		}

		slog.Info(fmt.Sprintf("using audio input device %q, sample rate: %d", d.Name, int(d.DefaultSampleRate)))

		return d, nil
	}

	d, err := device(nameOrID)
	if err != nil {
		return nil, fmt.Errorf("get audio input device: %w", err)
	}

	if d.MaxInputChannels < 1 {
		PrintDevices(os.Stderr)
		return nil, fmt.Errorf("audio device %q is not an input device or in use by another program", d.Name)
	}

	slog.Info(fmt.Sprintf("using audio input device %q, sample rate: %d", d.Name, int(d.DefaultSampleRate)))

	return d, nil
}

func outputDevice(nameOrID string) (*portaudio.DeviceInfo, error) {
	if nameOrID == "" {
		d, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("get default audio output device: %w", err)
		}

		slog.Info(fmt.Sprintf("using audio output device %q, sample rate: %d", d.Name, int(d.DefaultSampleRate)))

		return d, nil
	}

	d, err := device(nameOrID)
	if err != nil {
		return nil, fmt.Errorf("get audio output device: %w", err)
	}

	if d.MaxOutputChannels < 1 {
		PrintDevices(os.Stderr)
		return nil, fmt.Errorf("audio device %q is not an output device or in use by another program", d.Name)
	}

	slog.Info(fmt.Sprintf("using audio output device %q, sample rate: %d", d.Name, int(d.DefaultSampleRate)))

	return d, nil
}

// device looks a device up by its index or by a substring of its name.
func device(nameOrID string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list available audio devices: %w", err)
	}

	id, err := strconv.Atoi(nameOrID)
	if err != nil {
		for _, d := range devices {
			if strings.Contains(d.Name, nameOrID) {
				return d, nil
			}
		}

		PrintDevices(os.Stderr)

		return nil, fmt.Errorf("audio device %q not found", nameOrID)
	}

	if id < 0 || id >= len(devices) {
		PrintDevices(os.Stderr)

		return nil, fmt.Errorf("audio device %d not found - please specify the ID of an existing device", id)
	}

	return devices[id], nil
}

// PrintDevices writes a table of the available audio devices.
func PrintDevices(w io.Writer) {
	devices, err := portaudio.Devices()
	if err != nil {
		slog.Warn("failed to list audio devices", "err", err)
		return
	}

	format := "%2s  %-55s  %2s  %3s  %s\n"
	fmt.Fprintln(w, "\nAvailable audio devices:")
	fmt.Fprintf(w, format, "ID", "NAME", "IN", "OUT", "SAMPLERATE")
	for i, d := range devices {
		fmt.Fprintf(w, "%2d  %-55s  %2d  %3d  %10d\n", i, d.Name, d.MaxInputChannels, d.MaxOutputChannels, int(d.DefaultSampleRate))
	}
	fmt.Fprintln(w)
}
