package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/echo-voice/backend/internal/cache"
	"github.com/zhouzirui/echo-voice/backend/internal/config"
	"github.com/zhouzirui/echo-voice/backend/internal/logger"
	chatmodel "github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
	"github.com/zhouzirui/echo-voice/backend/internal/service/chat"
	"github.com/zhouzirui/echo-voice/backend/internal/service/speech"
	"github.com/zhouzirui/echo-voice/backend/internal/store"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// toolEnv 子命令共享的运行环境
type toolEnv struct {
	cfg     *config.Config
	log     *logrus.Logger
	timeout time.Duration
}

// NewRootCmd 构建 voicetester 命令树
func NewRootCmd() *cobra.Command {
	env := &toolEnv{}

	rootCmd := &cobra.Command{
		Use:          "voicetester",
		Short:        "Echo 语音链路调试工具",
		Long:         "在本地验证对话回合、Deepgram 凭证、Azure 合成以及流式识别。",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env.log = logger.New()
			if err := godotenv.Load(); err != nil {
				env.log.WithError(err).Debug("未找到 .env 文件，使用系统环境变量")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			env.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().DurationVar(&env.timeout, "timeout", 30*time.Second, "单条命令的超时时间")

	rootCmd.AddCommand(newTurnCmd(env))
	rootCmd.AddCommand(newCredentialCmd(env))
	rootCmd.AddCommand(newTTSCmd(env))
	rootCmd.AddCommand(newStreamCmd(env))

	return rootCmd
}

func newTurnCmd(env *toolEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turn [message]",
		Short: "在内存存储上跑一轮对话并打印结果",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), env.timeout)
			defer cancel()

			mem := store.NewMemoryStore()
			recorder := chat.NewRecorder(mem, env.log, env.cfg.Turn.PersistTimeout)
			svc, err := chat.NewService(ctx, recorder, chat.NewSessions(env.cfg.Turn.HistoryLimit), env.log)
			if err != nil {
				return fmt.Errorf("初始化对话服务失败: %w", err)
			}

			result, err := svc.HandleTurn(ctx, chatmodel.TurnRequest{Message: args[0], SessionID: sessionID})
			if err != nil {
				return err
			}
			recorder.Wait()

			messages, err := mem.ListMessages(ctx, store.MessageQuery{SessionID: sessionID})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"sessionId":      sessionID,
				"result":         result,
				"storedMessages": len(messages),
				"handoffs":       len(mem.Handoffs()),
			})
		},
	}
	cmd.Flags().String("session", "", "会话 ID，默认随机生成")
	return cmd
}

func newCredentialCmd(env *toolEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "credential",
		Short: "签发一枚 Deepgram 临时凭证",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), env.timeout)
			defer cancel()

			svc := newSpeechService(env, false)
			defer svc.Cleanup()

			cred, err := svc.IssueCredential(ctx)
			if err != nil {
				var credErr *speech.CredentialError
				if errors.As(err, &credErr) {
					return fmt.Errorf("%s (%s)", credErr.Message, credErr.Details)
				}
				return err
			}
			return printJSON(cmd, cred)
		},
	}
}

func newTTSCmd(env *toolEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tts",
		Short: "调用 Azure 合成语音并写入文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			voice, _ := cmd.Flags().GetString("voice")
			out, _ := cmd.Flags().GetString("out")
			conversation, _ := cmd.Flags().GetString("conversation")

			ctx, cancel := context.WithTimeout(cmd.Context(), env.timeout)
			defer cancel()

			svc := newSpeechService(env, true)
			defer svc.Cleanup()

			resp, fallback, err := svc.Synthesize(ctx, speechmodel.TTSRequest{
				Text:           text,
				ConversationID: conversation,
				VoiceID:        voice,
			})
			if err != nil {
				return err
			}
			if fallback != nil {
				env.log.Warn("服务端合成不可用，客户端应使用本地语音合成")
				return printJSON(cmd, fallback)
			}

			if out == "" {
				out = speech.AudioObjectName(conversation, resp.CreatedAt)
			}
			if err := os.WriteFile(out, resp.AudioData, 0o644); err != nil {
				return fmt.Errorf("写入音频失败: %w", err)
			}
			env.log.WithFields(logrus.Fields{
				"file":  out,
				"bytes": len(resp.AudioData),
				"voice": resp.Voice,
			}).Info("语音合成完成")
			return printJSON(cmd, map[string]any{
				"file":     out,
				"bytes":    len(resp.AudioData),
				"voice":    resp.Voice,
				"audioUrl": resp.AudioURL,
			})
		},
	}
	cmd.Flags().String("text", "Hello! I'm Echo, your AI customer support assistant.", "要合成的文本")
	cmd.Flags().String("voice", "", "音色，默认使用配置中的音色")
	cmd.Flags().String("out", "", "输出 mp3 路径")
	cmd.Flags().String("conversation", "", "会话 ID，用于生成文件名")
	return cmd
}

func newStreamCmd(env *toolEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "把 16kHz 单声道 WAV 推送到 Deepgram 流式识别",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("audio")
			realtime, _ := cmd.Flags().GetBool("realtime")
			if path == "" {
				return errors.New("必须通过 --audio 指定 WAV 文件")
			}

			audio, err := loadCaptureAudio(path)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), env.timeout)
			defer cancel()

			svc := newSpeechService(env, false)
			defer svc.Cleanup()

			sessionID := uuid.NewString()
			session, err := svc.OpenCapture(ctx, sessionID, func(t speechmodel.Transcript) {
				kind := "interim"
				if t.IsFinal {
					kind = "final"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", kind, t.Text)
			})
			if err != nil {
				return fmt.Errorf("建立识别连接失败: %w", err)
			}
			session.Start()

			frames := speech.SplitFrames(audio, speech.FrameSamples)
			frameDuration := time.Duration(speech.FrameSamples) * time.Second / speech.CaptureSampleRate
			for _, frame := range frames {
				if !session.SendPCM(frame) {
					break
				}
				if realtime {
					select {
					case <-ctx.Done():
					case <-time.After(frameDuration):
					}
				}
			}

			transcript := session.Close(ctx)
			stats := session.Stats()
			env.log.WithFields(logrus.Fields{
				"session": sessionID,
				"frames":  len(frames),
				"sent":    stats.Sent,
				"dropped": stats.Dropped,
			}).Info("流式识别结束")
			return printJSON(cmd, map[string]any{
				"sessionId":  sessionID,
				"transcript": transcript,
				"stats":      stats,
			})
		},
	}
	cmd.Flags().String("audio", "", "16kHz 单声道 16 位 PCM WAV 文件")
	cmd.Flags().Bool("realtime", true, "按实时节奏推送音频帧")
	return cmd
}

// loadCaptureAudio 读取 WAV 并返回可直接发送的 PCM 数据，文件错误映射为采集错误。
func loadCaptureAudio(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if captureErr := speech.ClassifyCaptureError("", err); captureErr != nil {
			return nil, captureErr
		}
		return nil, err
	}
	defer f.Close()

	info, err := readWAV(f)
	if err != nil {
		return nil, err
	}
	if err := info.validateForCapture(speech.CaptureSampleRate); err != nil {
		return nil, err
	}
	return info.Data, nil
}

func newSpeechService(env *toolEnv, withTTS bool) *speech.Service {
	speechConfig := env.cfg.SpeechConfig()
	opts := speech.Options{}
	if env.cfg.Deepgram.Enabled() {
		opts.Issuer = speech.NewCredentialIssuer(speechConfig, cache.NewMemoryCache(), env.log)
	}
	if withTTS && env.cfg.TTS.Enabled() {
		opts.Synthesizer = speech.NewAzureTTSClient(speechConfig)
	}
	return speech.NewService(speechConfig, opts, env.log)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
