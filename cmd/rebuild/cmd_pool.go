package main

import (
	"fmt"
	"io"

	"github.com/dhamidi/rebuild/classfile"
	"github.com/spf13/cobra"
)

func newPoolCmd(s *settings) *cobra.Command {
	var refsOnly bool

	cmd := &cobra.Command{
		Use:   "pool <file.class>",
		Short: "List the constant pool of a class and its member references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPool(s, args[0], refsOnly, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&refsOnly, "refs", "r", false, "only list member references")

	return cmd
}

func runPool(s *settings, file string, refsOnly bool, w io.Writer) error {
	path, resolver, err := s.resolver()
	if err != nil {
		return err
	}
	if path != nil {
		defer path.Close()
	}

	class, err := classfile.ParseFile(file, resolver)
	if err != nil {
		return fmt.Errorf("parse class file: %w", err)
	}
	cp := class.ConstantPool

	if !refsOnly {
		for i := 1; i < cp.Size(); i++ {
			tag, ok := cp.Tag(uint16(i))
			if !ok {
				continue
			}
			fmt.Fprintf(w, "#%d\t%s\t%s\n", i, tag, cp.Describe(uint16(i)))
		}
		fmt.Fprintln(w)
	}

	refs := cp.MemberRefs()
	for refs.HasNext() {
		ref, _ := refs.Next()
		line := fmt.Sprintf("#%d\t%s\t%s", ref.Index, ref.Kind, ref)
		if ref.IsField() {
			if f, ok := ref.Field(); ok {
				line += "\tdeclared in " + f.Owner.ClassName()
			}
		} else if _, ok := ref.ClassOwner(); ok {
			line += "\tresolved"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
