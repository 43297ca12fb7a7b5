// plctagctl is a small diagnostic CLI over the client library: read or
// write a single tag, query device identity, and manage named
// connection profiles so a full attribute string is not retyped on
// every invocation.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/libplctag/libplctag-sub000/config"
	"github.com/libplctag/libplctag-sub000/logging"
	"github.com/libplctag/libplctag-sub000/plctag"
)

var (
	profileName string
	configPath  string
	attrib      string
	timeoutMs   int
	debug       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "plctagctl",
		Short:         "Read and write PLC tags over EtherNet/IP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "named connection profile from the config file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "connection profile file")
	rootCmd.PersistentFlags().StringVar(&attrib, "attrib", "", "full attribute string (overrides --profile)")
	rootCmd.PersistentFlags().IntVar(&timeoutMs, "timeout", 5000, "operation timeout in milliseconds")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable protocol debug logging")

	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newWriteCmd())
	rootCmd.AddCommand(newIdentityCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// resolveAttrib builds the attribute string for a tag name from either
// --attrib or the selected profile.
func resolveAttrib(tagName string) (string, error) {
	if attrib != "" {
		return attrib + "&name=" + tagName, nil
	}
	if profileName == "" {
		return "", fmt.Errorf("either --attrib or --profile is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	p := cfg.FindProfile(profileName)
	if p == nil {
		return "", fmt.Errorf("no profile %q in %s", profileName, configPath)
	}
	return p.AttribString() + "&name=" + tagName, nil
}

func setupDebug() func() {
	if !debug {
		return func() {}
	}
	logger, err := logging.NewDebugLogger("plctagctl_debug.log")
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: debug log unavailable:", err)
		return func() {}
	}
	logging.SetGlobalDebugLogger(logger)
	return func() { logger.Close() }
}

func newReadCmd() *cobra.Command {
	var asType string
	cmd := &cobra.Command{
		Use:   "read <tag>",
		Short: "Read a tag and print its value(s)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup := setupDebug()
			defer cleanup()
			defer plctag.Shutdown()

			a, err := resolveAttrib(args[0])
			if err != nil {
				return err
			}
			id, err := plctag.Create(a, time.Duration(timeoutMs)*time.Millisecond)
			if err != nil {
				return err
			}
			defer plctag.Destroy(id)

			if rc := plctag.Read(id, time.Duration(timeoutMs)*time.Millisecond); rc != plctag.StatusOK {
				return fmt.Errorf("read failed: %s", plctag.DecodeError(rc))
			}
			return printValues(id, asType)
		},
	}
	cmd.Flags().StringVar(&asType, "type", "dint", "value type: sint|int|dint|lint|real|lreal|string")
	return cmd
}

func printValues(id int, asType string) error {
	size, _ := plctag.GetSize(id)
	switch asType {
	case "sint":
		for off := 0; off < size; off++ {
			v, _ := plctag.GetInt8(id, off)
			fmt.Printf("[%d] %d\n", off, v)
		}
	case "int":
		for off := 0; off+2 <= size; off += 2 {
			v, _ := plctag.GetInt16(id, off)
			fmt.Printf("[%d] %d\n", off/2, v)
		}
	case "dint":
		for off := 0; off+4 <= size; off += 4 {
			v, _ := plctag.GetInt32(id, off)
			fmt.Printf("[%d] %d\n", off/4, v)
		}
	case "lint":
		for off := 0; off+8 <= size; off += 8 {
			v, _ := plctag.GetInt64(id, off)
			fmt.Printf("[%d] %d\n", off/8, v)
		}
	case "real":
		for off := 0; off+4 <= size; off += 4 {
			v, _ := plctag.GetFloat32(id, off)
			fmt.Printf("[%d] %g\n", off/4, v)
		}
	case "lreal":
		for off := 0; off+8 <= size; off += 8 {
			v, _ := plctag.GetFloat64(id, off)
			fmt.Printf("[%d] %g\n", off/8, v)
		}
	case "string":
		s, rc := plctag.GetString(id, 0)
		if rc != plctag.StatusOK {
			return fmt.Errorf("string decode failed: %s", plctag.DecodeError(rc))
		}
		fmt.Println(s)
	default:
		return fmt.Errorf("unknown type %q", asType)
	}
	return nil
}

func newWriteCmd() *cobra.Command {
	var asType string
	cmd := &cobra.Command{
		Use:   "write <tag> <value>...",
		Short: "Write value(s) to a tag",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup := setupDebug()
			defer cleanup()
			defer plctag.Shutdown()

			a, err := resolveAttrib(args[0])
			if err != nil {
				return err
			}
			id, err := plctag.Create(a, time.Duration(timeoutMs)*time.Millisecond)
			if err != nil {
				return err
			}
			defer plctag.Destroy(id)

			// Read first so the element type and buffer size are known.
			if rc := plctag.Read(id, time.Duration(timeoutMs)*time.Millisecond); rc != plctag.StatusOK {
				return fmt.Errorf("initial read failed: %s", plctag.DecodeError(rc))
			}
			if err := stageValues(id, asType, args[1:]); err != nil {
				return err
			}
			if rc := plctag.Write(id, time.Duration(timeoutMs)*time.Millisecond); rc != plctag.StatusOK {
				return fmt.Errorf("write failed: %s", plctag.DecodeError(rc))
			}
			fmt.Println("ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&asType, "type", "dint", "value type: sint|int|dint|lint|real|lreal|string")
	return cmd
}

func stageValues(id int, asType string, vals []string) error {
	for i, raw := range vals {
		switch asType {
		case "sint":
			n, err := strconv.ParseInt(raw, 0, 8)
			if err != nil {
				return err
			}
			plctag.SetInt8(id, i, int8(n))
		case "int":
			n, err := strconv.ParseInt(raw, 0, 16)
			if err != nil {
				return err
			}
			plctag.SetInt16(id, i*2, int16(n))
		case "dint":
			n, err := strconv.ParseInt(raw, 0, 32)
			if err != nil {
				return err
			}
			plctag.SetInt32(id, i*4, int32(n))
		case "lint":
			n, err := strconv.ParseInt(raw, 0, 64)
			if err != nil {
				return err
			}
			plctag.SetInt64(id, i*8, n)
		case "real":
			f, err := strconv.ParseFloat(raw, 32)
			if err != nil {
				return err
			}
			plctag.SetFloat32(id, i*4, float32(f))
		case "lreal":
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return err
			}
			plctag.SetFloat64(id, i*8, f)
		case "string":
			if rc := plctag.SetString(id, 0, raw); rc != plctag.StatusOK {
				return fmt.Errorf("string encode failed: %s", plctag.DecodeError(rc))
			}
		default:
			return fmt.Errorf("unknown type %q", asType)
		}
	}
	return nil
}

func newIdentityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity <gateway>",
		Short: "Query a device's EtherNet/IP identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup := setupDebug()
			defer cleanup()

			ident, err := plctag.QueryIdentity(args[0], time.Duration(timeoutMs)*time.Millisecond)
			if err != nil {
				return err
			}
			fmt.Printf("product:  %s\n", ident.ProductName)
			fmt.Printf("vendor:   0x%04X\n", ident.VendorID)
			fmt.Printf("type:     0x%04X\n", ident.DeviceType)
			fmt.Printf("code:     0x%04X\n", ident.ProductCode)
			fmt.Printf("revision: %d.%d\n", ident.Revision[0], ident.Revision[1])
			fmt.Printf("serial:   0x%08X\n", ident.SerialNumber)
			return nil
		},
	}
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage named connection profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(cfg.Profiles) == 0 {
				fmt.Println("no profiles configured")
				return nil
			}
			for _, p := range cfg.Profiles {
				fmt.Printf("%-20s %s\n", p.Name, p.AttribString())
			}
			return nil
		},
	})

	var (
		protocol string
		gateway  string
		path     string
		family   string
	)
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a connection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.Lock()
			cfg.AddProfile(config.Profile{
				Name:     args[0],
				Protocol: protocol,
				Gateway:  gateway,
				Path:     path,
				Family:   family,
			})
			if err := cfg.UnlockAndSave(configPath); err != nil {
				return err
			}
			fmt.Printf("profile %q saved to %s\n", args[0], configPath)
			return nil
		},
	}
	addCmd.Flags().StringVar(&protocol, "protocol", "ab_eip", "protocol dialect")
	addCmd.Flags().StringVar(&gateway, "gateway", "", "PLC host (required)")
	addCmd.Flags().StringVar(&path, "path", "", "backplane path, e.g. 1,0")
	addCmd.Flags().StringVar(&family, "plc", "", "controller family")
	_ = addCmd.MarkFlagRequired("gateway")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a connection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.Lock()
			if !cfg.RemoveProfile(args[0]) {
				cfg.Unlock()
				return fmt.Errorf("no profile %q", args[0])
			}
			return cfg.UnlockAndSave(configPath)
		},
	})

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the library version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%d.%d.%d\n", plctag.VersionMajor, plctag.VersionMinor, plctag.VersionPatch)
		},
	}
}
