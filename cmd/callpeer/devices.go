//go:build devices

package main

import (
	"github.com/Wyydra/yacall/internal/adapter/driven/media/devices"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)

func init() {
	openDevices = func() (port.MediaSource, error) {
		vpxParams, err := vpx.NewVP8Params()
		if err != nil {
			return nil, err
		}
		vpxParams.BitRate = 500_000

		opusParams, err := opus.NewParams()
		if err != nil {
			return nil, err
		}
		opusParams.BitRate = 32_000

		codecs := mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		)
		return devices.NewSource(codecs), nil
	}
}
