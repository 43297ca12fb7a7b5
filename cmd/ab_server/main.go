// ab_server is a test PLC: it serves the EtherNet/IP, CIP, and PCCC
// protocol surface the client library speaks, against a tag inventory
// supplied on the command line or in a YAML tag file.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/libplctag/libplctag-sub000/abserver"
	"github.com/libplctag/libplctag-sub000/config"
	"github.com/libplctag/libplctag-sub000/logging"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		plcName    string
		pathStr    string
		tagSpecs   []string
		tagFile    string
		listenAddr string
		debug      bool
		debugFile  string
		rejectFO   int
	)

	cmd := &cobra.Command{
		Use:   "ab_server",
		Short: "Simulated Allen-Bradley PLC for protocol testing",
		Long: `ab_server simulates a ControlLogix, Micro800, Omron, PLC5, SLC, or
MicroLogix controller on EtherNet/IP: it registers sessions, serves
Forward Open/Close, Read/Write Tag (plain and fragmented), and Execute
PCCC against the configured tag inventory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			plc, err := abserver.ParsePLCType(plcName)
			if err != nil {
				return err
			}
			path, err := abserver.ParsePath(pathStr)
			if err != nil {
				return err
			}

			var defs []string
			if tagFile != "" {
				cfg, err := config.Load(tagFile)
				if err != nil {
					return fmt.Errorf("tagfile %s: %w", tagFile, err)
				}
				for _, t := range cfg.Tags {
					spec := t.Name + ":" + t.Type
					if len(t.Dims) > 0 {
						dims := make([]string, len(t.Dims))
						for i, d := range t.Dims {
							dims[i] = fmt.Sprintf("%d", d)
						}
						spec += "[" + strings.Join(dims, ",") + "]"
					}
					defs = append(defs, spec)
				}
			}
			// CLI --tag flags merge after the tagfile so they win on
			// name collision.
			defs = append(defs, tagSpecs...)
			if len(defs) == 0 {
				return fmt.Errorf("no tags configured (use --tag or --tagfile)")
			}

			seen := make(map[string]int)
			var tags []*abserver.ServerTag
			for _, spec := range defs {
				t, err := abserver.ParseTagDef(spec, plc)
				if err != nil {
					return err
				}
				if i, dup := seen[strings.ToLower(t.Name)]; dup {
					tags[i] = t
					continue
				}
				seen[strings.ToLower(t.Name)] = len(tags)
				tags = append(tags, t)
			}

			if debug {
				logger, err := logging.NewDebugLogger(debugFile)
				if err != nil {
					return err
				}
				defer logger.Close()
				logging.SetGlobalDebugLogger(logger)
			}

			srv, err := abserver.New(abserver.Config{
				PLC:                plc,
				Path:               path,
				RejectForwardOpens: rejectFO,
				Tags:               tags,
			})
			if err != nil {
				return err
			}
			if err := srv.Start(listenAddr); err != nil {
				return err
			}
			fmt.Printf("ab_server: serving %s on %s with %d tag(s)\n", plcName, srv.Addr(), len(tags))

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			srv.Close()
			fmt.Println("ab_server: shut down")
			return nil
		},
	}

	cmd.Flags().StringVar(&plcName, "plc", "", "PLC flavor: ControlLogix|Micro800|Omron|PLC5|SLC|MicroLogix (required)")
	cmd.Flags().StringVar(&pathStr, "path", "", "expected backplane path, e.g. 1,0")
	cmd.Flags().StringArrayVar(&tagSpecs, "tag", nil, "tag definition name:TYPE[d1,d2,d3] (repeatable)")
	cmd.Flags().StringVar(&tagFile, "tagfile", "", "YAML file supplying tag definitions")
	cmd.Flags().StringVar(&listenAddr, "listen", ":44818", "TCP listen address")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable protocol debug logging")
	cmd.Flags().StringVar(&debugFile, "debug-file", "ab_server_debug.log", "debug log file path")
	cmd.Flags().IntVar(&rejectFO, "reject-forward-opens", 0, "reject the first N Forward Open attempts (retry testing)")
	_ = cmd.MarkFlagRequired("plc")
	return cmd
}
