package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coursematch/src/log"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "coursematch",
	Short: "Match job descriptions to college programs and their courses",
	Long: `coursematch scrapes program pages, builds a vector index over them, and answers
job descriptions with the programs and courses that fit them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./coursematch.yaml)")
	settingDefaultConfig()
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func initConfig() error {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("coursematch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := log.Setup(viper.GetBool("log.development"), viper.GetInt("log.verbosity")); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	if f := viper.ConfigFileUsed(); f != "" {
		log.Debug("using config file", "path", f)
	}
	return nil
}
