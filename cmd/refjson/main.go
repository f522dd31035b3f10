// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Program refjson inspects and transforms JSON documents that carry
// reference metadata ($id, $ref, $values).
//
// Usage:
//
//	refjson check file.json     -- verify reference metadata
//	refjson expand file.json    -- resolve references to plain JSON
//	refjson get '$.a[0]' f.json -- extract the value at a path
//
// With no file argument, or with "-", input is read from stdin. The --hujson
// flag standardizes HuJSON input (comments and trailing commas) before
// decoding.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/tailscale/hujson"

	"github.com/creachadair/refjson/codec"
	"github.com/creachadair/refjson/jpath"
)

var flags struct {
	huJSON bool
	noRefs bool
}

func main() {
	root := &cobra.Command{
		Use:           "refjson",
		Short:         "inspect and transform reference-preserving JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flags.huJSON, "hujson", false,
		"standardize HuJSON input (comments, trailing commas) before decoding")
	root.PersistentFlags().BoolVar(&flags.noRefs, "no-refs", false,
		"treat $-prefixed keys as ordinary member names")
	root.AddCommand(checkCmd(), expandCmd(), getCmd())

	if err := root.Execute(); err != nil {
		var cerr *codec.Error
		if errors.As(err, &cerr) {
			log.Fatal("invalid document", "kind", cerr.Kind, "path", cerr.Path, "err", cerr.Message)
		}
		log.Fatal(err)
	}
}

func decodeOptions() *codec.Options {
	if flags.noRefs {
		return &codec.Options{References: codec.DefaultReferences}
	}
	return &codec.Options{References: codec.PreserveReferences}
}

// readInput loads the document named by args, or stdin.
func readInput(args []string) ([]byte, error) {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, err
	}
	if flags.huJSON {
		return hujson.Standardize(data)
	}
	return data, nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "verify the reference metadata of a document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args)
			if err != nil {
				return err
			}
			var v any
			if err := codec.Unmarshal(data, &v, decodeOptions()); err != nil {
				return err
			}
			log.Info("document ok", "bytes", len(data))
			return nil
		},
	}
}

func expandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand [file]",
		Short: "resolve $id/$ref metadata into plain JSON",
		Long: `Resolve $id/$ref metadata into plain JSON.

Shared values are duplicated at each of their occurrences. A document whose
references form a cycle cannot be expanded and is reported as an error.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args)
			if err != nil {
				return err
			}
			var v any
			if err := codec.Unmarshal(data, &v, decodeOptions()); err != nil {
				return err
			}
			out, err := codec.Marshal(v, &codec.Options{References: codec.DefaultReferences})
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get path [file]",
		Short: "extract the value at a JSONPath",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := jpath.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid path %q: %w", args[0], err)
			}
			data, err := readInput(args[1:])
			if err != nil {
				return err
			}
			var v any
			if err := codec.Unmarshal(data, &v, decodeOptions()); err != nil {
				return err
			}
			got, err := walkPath(v, path)
			if err != nil {
				return err
			}
			out, err := codec.Marshal(got, &codec.Options{References: codec.DefaultReferences})
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// walkPath follows p through a decoded document.
func walkPath(v any, p jpath.Path) (any, error) {
	for i, st := range p {
		switch st.Op {
		case jpath.Member:
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: not an object", p[:i])
			}
			mv, ok := m[st.Name]
			if !ok {
				return nil, fmt.Errorf("%s: no member %q", p[:i], st.Name)
			}
			v = mv
		case jpath.Index:
			a, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("%s: not an array", p[:i])
			}
			idx := st.Index
			if idx < 0 {
				idx += len(a)
			}
			if idx < 0 || idx >= len(a) {
				return nil, fmt.Errorf("%s: index %d out of range", p[:i], st.Index)
			}
			v = a[idx]
		}
	}
	return v, nil
}
