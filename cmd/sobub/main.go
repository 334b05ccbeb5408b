package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gordonklaus/portaudio"

	"github.com/mgoltzsche/sobub/internal/audio"
	"github.com/mgoltzsche/sobub/internal/cli"
	"github.com/mgoltzsche/sobub/internal/client"
	"github.com/mgoltzsche/sobub/internal/stt"
)

func main() {
	hostname, _ := os.Hostname()

	c := &client.Client{
		ServerURL: "https://localhost:8443",
		ClientID:  hostname,
		Out:       os.Stdout,
	}
	input := &audio.Input{
		SampleRate:    stt.DefaultSampleRate,
		ChunkDuration: c.ChunkDuration,
		MinVolume:     300,
	}
	output := &audio.Output{}
	insecure := false
	listDevices := false

	flag.StringVar(&c.ServerURL, "server-url", c.ServerURL, "URL of the SOBUB server")
	flag.StringVar(&c.ClientID, "client-id", c.ClientID, "ID of this client, used as websocket session ID")
	flag.StringVar(&input.Device, "input-device", input.Device, "name or ID of the audio input device")
	flag.StringVar(&output.Device, "output-device", output.Device, "name or ID of the audio output device")
	flag.IntVar(&input.MinVolume, "min-volume", input.MinVolume, "chunks with a lower RMS volume are not sent")
	flag.BoolVar(&insecure, "insecure", insecure, "skip TLS certificate verification, e.g. for self-signed server certificates")
	flag.BoolVar(&listDevices, "list-devices", listDevices, "print the available audio devices and exit")
	cli.ParseFlagsWithEnvVars(flag.CommandLine, "SOBUB_CLIENT_")

	if insecure {
		c.HTTPClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}
	}

	c.Player = output

	err := portaudio.Initialize()
	if err != nil {
		slog.Error(fmt.Sprintf("initialize portaudio: %s", err))
		os.Exit(1)
	}
	defer portaudio.Terminate()

	if listDevices {
		audio.PrintDevices(os.Stdout)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, c, input)
	if err != nil {
		slog.Error(err.Error())
		portaudio.Terminate()
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, input *audio.Input) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := input.RecordAudio(ctx)
	if err != nil {
		return err
	}

	return c.Run(ctx, chunks)
}
