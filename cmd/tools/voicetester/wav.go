package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// wavInfo 描述 PCM WAV 文件的格式与数据段
type wavInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte
}

// readWAV 解析 RIFF/WAVE，只接受未压缩 PCM。
func readWAV(r io.Reader) (*wavInfo, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}

	info := &wavInfo{}
	sawFormat := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("wav file has no data chunk")
			}
			return nil, fmt.Errorf("read wav chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, errors.New("fmt chunk too short")
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return nil, fmt.Errorf("unsupported wav format %d, only PCM is supported", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			sawFormat = true
		case "data":
			if !sawFormat {
				return nil, errors.New("wav data chunk before fmt chunk")
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			info.Data = data[:n]
			return info, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 && id == "fmt " {
			io.CopyN(io.Discard, r, 1)
		}
	}
}

// validateForCapture 识别会话只接受 16kHz 单声道 16 位 PCM。
func (w *wavInfo) validateForCapture(sampleRate int) error {
	if w.Channels != 1 || w.BitsPerSample != 16 || w.SampleRate != sampleRate {
		return fmt.Errorf("expected %d Hz mono 16-bit PCM, got %d Hz %d channel(s) %d-bit",
			sampleRate, w.SampleRate, w.Channels, w.BitsPerSample)
	}
	return nil
}
