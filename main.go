package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voicescribe/metrics"
	"voicescribe/punct"
	"voicescribe/store"
	"voicescribe/stt"
	"voicescribe/telegram"
	"voicescribe/voicebot"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().String("model", "", "Model to transcribe with")

	rootCmd.PersistentFlags().String("telegram-token", "", "Telegram bot token")
	rootCmd.PersistentFlags().Int64("owner-id", 0, "Controlling account user ID")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address")
	rootCmd.PersistentFlags().
		String("whisper-base-url", "", "Whisper server base URL (OpenAI-compatible)")
	rootCmd.PersistentFlags().String("whisper-api-key", "", "Whisper server API key")
	rootCmd.PersistentFlags().String("openai-api-key", "", "OpenAI API key for punctuation")
	rootCmd.PersistentFlags().String("metrics-addr", ":9090", "Metrics listen address")

	viper.BindPFlag(
		"telegram_token",
		rootCmd.PersistentFlags().Lookup("telegram-token"),
	)
	viper.BindPFlag("owner_id", rootCmd.PersistentFlags().Lookup("owner-id"))
	viper.BindPFlag("redis_addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	viper.BindPFlag(
		"whisper_base_url",
		rootCmd.PersistentFlags().Lookup("whisper-base-url"),
	)
	viper.BindPFlag(
		"whisper_api_key",
		rootCmd.PersistentFlags().Lookup("whisper-api-key"),
	)
	viper.BindPFlag(
		"openai_api_key",
		rootCmd.PersistentFlags().Lookup("openai-api-key"),
	)
	viper.BindPFlag("metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
}

func initConfig() {
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("whisper_model", "base")
	viper.SetDefault("whisper_language", "")
	viper.SetDefault("punct_model", "")
	viper.SetDefault("stt_workers", runtime.NumCPU())
	viper.SetDefault("temp_dir", "temp")
	viper.SetDefault("default_tracked", 0)

	viper.ReadInConfig()

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "voicescribe",
	Short: "Voicescribe transcribes Telegram voice messages",
	Long:  `Voicescribe is a Telegram userbot that transcribes voice messages in place, with punctuation and paragraphs restored.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot",
	Run:   runBot,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List tracked senders in a cool table",
	Run:   runListUsers,
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe a single audio file and print the text",
	Args:  cobra.ExactArgs(1),
	Run:   runTranscribe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) {
	mainLogger, botLogger, sttLogger, storeLogger := createLoggers()

	token := viper.GetString("telegram_token")
	ownerID := viper.GetInt64("owner_id")
	if token == "" {
		mainLogger.Fatal("missing TELEGRAM_TOKEN or --telegram-token=")
	}
	if ownerID == 0 {
		mainLogger.Fatal("missing OWNER_ID or --owner-id=")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	st := store.New(viper.GetString("redis_addr"), storeLogger)
	if err := st.Ping(ctx); err != nil {
		mainLogger.Fatal("connect to redis", "error", err.Error())
	}
	defer st.Close()

	defaultModel := viper.GetString("whisper_model")
	if err := st.Seed(ctx, defaultModel, viper.GetInt64("default_tracked")); err != nil {
		mainLogger.Fatal("seed config store", "error", err.Error())
	}

	model := st.Model(ctx)
	if model == "" {
		model = defaultModel
	}

	whisperBaseURL := viper.GetString("whisper_base_url")
	whisperAPIKey := viper.GetString("whisper_api_key")
	language := viper.GetString("whisper_language")
	loader := func(name string) (stt.Engine, error) {
		return stt.NewWhisperEngine(whisperBaseURL, whisperAPIKey, name, language), nil
	}
	service, err := stt.NewService(loader, model, viper.GetInt("stt_workers"), sttLogger)
	if err != nil {
		mainLogger.Fatal("start transcription service", "error", err.Error())
	}
	defer service.Close()

	var restorer punct.Restorer = punct.Passthrough{}
	if key := viper.GetString("openai_api_key"); key != "" {
		restorer = punct.NewOpenAIRestorer(key, viper.GetString("punct_model"))
	} else {
		mainLogger.Warn("no OPENAI_API_KEY, punctuation restore disabled")
	}
	formatter := punct.NewFormatter(restorer, botLogger)

	m := metrics.New(prometheus.DefaultRegisterer)
	go func() {
		if err := metrics.Serve(ctx, viper.GetString("metrics_addr"), mainLogger); err != nil {
			mainLogger.Error("metrics server", "error", err.Error())
		}
	}()

	bot := voicebot.New(voicebot.Options{
		Dial: func() (telegram.Client, error) {
			return telegram.NewSession(token, ownerID, botLogger)
		},
		Store:       st,
		Transcriber: service,
		Formatter:   formatter,
		Metrics:     m,
		Logger:      botLogger,
		TempDir:     viper.GetString("temp_dir"),
	})

	if err := bot.Run(ctx); err != nil {
		mainLogger.Fatal("bot stopped", "error", err.Error())
	}
	mainLogger.Info("shutdown complete")
}

func runListUsers(cmd *cobra.Command, args []string) {
	mainLogger, _, _, storeLogger := createLoggers()

	ctx := context.Background()
	st := store.New(viper.GetString("redis_addr"), storeLogger)
	if err := st.Ping(ctx); err != nil {
		mainLogger.Fatal("connect to redis", "error", err.Error())
	}
	defer st.Close()

	users := st.TrackedUsers(ctx)
	if len(users) == 0 {
		fmt.Println("No tracked senders.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "User ID"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for i, id := range users {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d", id),
		})
	}

	table.Render()
}

func runTranscribe(cmd *cobra.Command, args []string) {
	mainLogger, _, sttLogger, _ := createLoggers()

	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = viper.GetString("whisper_model")
	}
	if !stt.KnownModel(model) {
		mainLogger.Fatal("unknown model", "model", model)
	}

	engine := stt.NewWhisperEngine(
		viper.GetString("whisper_base_url"),
		viper.GetString("whisper_api_key"),
		model,
		viper.GetString("whisper_language"),
	)
	defer engine.Close()

	sttLogger.Info("transcribing", "file", args[0], "model", model)
	text, err := engine.Transcribe(context.Background(), args[0])
	if err != nil {
		mainLogger.Fatal("transcribe", "error", err.Error())
	}

	if key := viper.GetString("openai_api_key"); key != "" {
		formatter := punct.NewFormatter(
			punct.NewOpenAIRestorer(key, viper.GetString("punct_model")),
			mainLogger,
		)
		text = formatter.Format(context.Background(), text)
	}

	fmt.Println(text)
}

func createLoggers() (mainLogger, botLogger, sttLogger, storeLogger *log.Logger) {
	logLevel := log.DebugLevel

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	botLogger = logger.With().WithPrefix("bot")
	sttLogger = logger.With().WithPrefix("hear")
	storeLogger = logger.With().WithPrefix("data")

	return
}
