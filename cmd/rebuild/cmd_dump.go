package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dhamidi/rebuild/classfile"
	"github.com/dhamidi/rebuild/format"
	"github.com/spf13/cobra"
)

func newDumpCmd(s *settings) *cobra.Command {
	var dumpFormat string
	var method string

	cmd := &cobra.Command{
		Use:   "dump <file.class | class.name>",
		Short: "Print the rebuilt method bodies of a class",
		Long: `Print a class with its method bodies rebuilt into statements.

The argument is either a .class file or a class name looked up on the
class path.

Examples:
  rebuild dump Foo.class
  rebuild dump -c lib/app.jar com.example.Foo --method run -f json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("format") {
				s.cfg.Format = dumpFormat
			}
			return runDump(s, args[0], method, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&dumpFormat, "format", "f", "java", "output format ("+strings.Join(format.Names, ", ")+")")
	cmd.Flags().StringVarP(&method, "method", "m", "", "only print methods with this name")

	return cmd
}

func runDump(s *settings, target, method string, w io.Writer) error {
	path, resolver, err := s.resolver()
	if err != nil {
		return err
	}
	if path != nil {
		defer path.Close()
	}

	var class *classfile.ClassFile
	switch {
	case strings.HasSuffix(target, ".class"):
		class, err = classfile.ParseFile(target, resolver)
		if err != nil {
			return fmt.Errorf("parse class file: %w", err)
		}
	case path != nil:
		class, err = path.ResolveClass(target)
		if err != nil {
			return fmt.Errorf("load %s: %w", target, err)
		}
	default:
		return fmt.Errorf("%s is not a .class file and no class path is set", target)
	}

	enc, err := format.New(s.cfg.Format, w, format.WithMethod(method))
	if err != nil {
		return err
	}
	if err := enc.Encode(class); err != nil {
		return fmt.Errorf("encode %s: %w", s.cfg.Format, err)
	}
	for _, err := range class.BodyErrors() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", err)
	}
	return nil
}
