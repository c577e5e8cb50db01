package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/policygraph/internal/logging"
	"github.com/ppiankov/policygraph/internal/model"
	"github.com/ppiankov/policygraph/internal/rag"
)

// Version is the released version
const Version = "0.1.0"

var (
	cfgFile   string
	verbose   bool
	graphsDir string

	// set by the root PersistentPreRunE
	cfg    *model.Config
	logger *log.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "policygraph",
	Short: "policygraph - knowledge graphs and question answering over policy documents",
	Long: `policygraph turns policy and compliance documents into a knowledge graph
of sections, requirements and entities, and answers questions from it.

An LLM provider extracts the document structure and writes the answers.
Graphs are saved as JSON, one file per document, and can be inspected,
edited and queried again later.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env in the working directory may carry API keys
		envErr := godotenv.Load()

		loaded, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(logging.Options{
			Level:   cfg.Output.LogLevel,
			Verbose: cfg.Output.Verbose,
			Output:  cmd.ErrOrStderr(),
		})
		if envErr != nil {
			logger.Debug("no .env file loaded, using process environment")
		}
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", "path", used)
		}
		return nil
	},
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "policygraph v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.policygraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&graphsDir, "graphs-dir", "", "directory graphs are saved in")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("storage.graphs_dir", rootCmd.PersistentFlags().Lookup("graphs-dir"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig points viper at the config file and environment
func initConfig() {
	configureViper(viper.GetViper(), cfgFile)
}

func configureViper(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(model.DefaultConfigDir())
		v.SetConfigName("config")
	}
	v.SetConfigType("yaml")

	// POLICYGRAPH_LLM_PROVIDER overrides llm.provider and so on
	v.SetEnvPrefix("POLICYGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// envOnlyKeys are omitted from the defaults document, so environment
// lookups for them have to be bound explicitly
var envOnlyKeys = []string{
	"llm.api_key",
	"llm.base_url",
	"http.http_proxy",
	"http.https_proxy",
	"http.no_proxy",
}

// loadConfig layers defaults, the config file (if any), environment and
// flags into a Config
func loadConfig(v *viper.Viper) (*model.Config, error) {
	defaults, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}

	out := model.DefaultConfig()
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	out.Storage.GraphsDir = expandHome(out.Storage.GraphsDir)
	out.Cache.Dir = expandHome(out.Cache.Dir)
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// newSession creates a session from the loaded config
func newSession() (*rag.Session, error) {
	return rag.NewFromConfig(cfg, logger)
}

// openSession creates a session and opens the named graph
func openSession(name string) (*rag.Session, error) {
	s, err := newSession()
	if err != nil {
		return nil, err
	}
	if err := s.OpenGraph(name); err != nil {
		return nil, err
	}
	return s, nil
}
