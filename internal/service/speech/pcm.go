package speech

import (
	"encoding/binary"
	"math"
)

const (
	// FrameSamples 每帧采样数，16kHz 下约 256ms。
	FrameSamples = 4096
	// CaptureSampleRate 采集与识别统一使用的采样率。
	CaptureSampleRate = 16000
)

// Float32ToInt16LE 将 [-1,1] 浮点采样转换为小端 16 位 PCM。
// 超出范围的值先截断；负值乘 0x8000，非负值乘 0x7FFF，然后向零取整。
func Float32ToInt16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))

		var sample int16
		if v < 0 {
			sample = int16(v * 0x8000)
		} else {
			sample = int16(v * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// SplitFrames 把 PCM16 字节流切成每帧 frameSamples 个采样，最后一帧可能较短。
func SplitFrames(pcm []byte, frameSamples int) [][]byte {
	if frameSamples <= 0 {
		frameSamples = FrameSamples
	}
	size := frameSamples * 2
	frames := make([][]byte, 0, (len(pcm)+size-1)/size)
	for start := 0; start < len(pcm); start += size {
		end := start + size
		if end > len(pcm) {
			end = len(pcm)
		}
		frames = append(frames, pcm[start:end])
	}
	return frames
}
