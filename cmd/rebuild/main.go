package main

import (
	"os"

	"github.com/dhamidi/rebuild/classfile"
	"github.com/dhamidi/rebuild/classpath"
	"github.com/dhamidi/rebuild/config"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// settings holds the persistent flags and the configuration they override.
type settings struct {
	configPath string
	verbose    int
	classpath  string

	cfg *config.Config
}

func main() {
	s := &settings{}
	rootCmd := &cobra.Command{
		Use:          "rebuild",
		Short:        "Rebuild structured method bodies from JVM class files",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&s.configPath, "config", "", "configuration file (default "+config.DefaultFile+" when present)")
	flags.CountVarP(&s.verbose, "verbose", "v", "log more, repeat for more detail")
	flags.StringVarP(&s.classpath, "classpath", "c", "", "class path used to resolve referenced classes")

	rootCmd.AddCommand(newDumpCmd(s))
	rootCmd.AddCommand(newPoolCmd(s))
	rootCmd.AddCommand(newScanCmd(s))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (s *settings) load(cmd *cobra.Command) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbosity = s.verbose
	}
	if cmd.Flags().Changed("classpath") {
		cfg.Classpath = classpath.Split(s.classpath)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	commonlog.Configure(cfg.Verbosity, nil)
	s.cfg = cfg
	return nil
}

// resolver opens the configured class path. Without one, class references
// stay unresolved and the returned path is nil.
func (s *settings) resolver() (*classpath.Path, classfile.ClassResolver, error) {
	if len(s.cfg.Classpath) == 0 {
		return nil, nil, nil
	}
	p, err := classpath.New(s.cfg.Classpath...)
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}
