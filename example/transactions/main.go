package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tusharparekh/scaling-demos/example/transactions/app"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/runner"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

//go:embed resources/job.yaml
var embeddedJSL []byte

//go:embed resources/migrations
var embeddedMigrations embed.FS

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルを受け取るとチャンクの境界でジョブを停止します。
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("シグナル '%v' を受信しました。ジョブの停止を試みます...", sig)
		cancel()
	}()

	exitCode := runner.ExitCodeFailed
	rootCmd := newRootCmd(&exitCode)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(runner.ExitCodeFailed)
	}
	os.Exit(exitCode)
}

func newRootCmd(exitCode *int) *cobra.Command {
	var (
		jobName       string
		inputFlatFile string
		inputXMLFile  string
		params        []string
		envFile       string
	)

	cmd := &cobra.Command{
		Use:           "transactions",
		Short:         "Load transaction files (XML and CSV) into the transaction table",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseParams(params)
			if err != nil {
				return err
			}
			if inputFlatFile != "" {
				overrides["inputFlatFile"] = inputFlatFile
			}
			if inputXMLFile != "" {
				overrides["inputXmlFile"] = inputXMLFile
			}

			migrations, err := fs.Sub(embeddedMigrations, "resources/migrations")
			if err != nil {
				return err
			}

			*exitCode = app.RunApplication(cmd.Context(), app.Options{
				EnvFilePath:    envFile,
				EmbeddedConfig: embeddedConfig,
				EmbeddedJSL:    embeddedJSL,
				Migrations:     migrations,
				JobName:        jobName,
				Parameters:     overrides,
			})
			return nil
		},
	}

	defaultEnvFile := os.Getenv("ENV_FILE_PATH")
	if defaultEnvFile == "" {
		defaultEnvFile = ".env"
	}

	cmd.Flags().StringVar(&jobName, "job", "", "Job to run (defaults to batch.job_name)")
	cmd.Flags().StringVar(&inputFlatFile, "input-flat-file", "", "CSV file for the inputFlatFile parameter")
	cmd.Flags().StringVar(&inputXMLFile, "input-xml-file", "", "XML file for the inputXmlFile parameter")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Job parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&envFile, "env-file", defaultEnvFile, "Path of the .env file to load")

	return cmd
}

// parseParams は key=value 形式のパラメータを map に変換します。
func parseParams(params []string) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("パラメータ '%s' は key=value 形式である必要があります", p)
		}
		out[key] = value
	}
	return out, nil
}
