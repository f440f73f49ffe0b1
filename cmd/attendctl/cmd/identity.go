package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/vision"
)

var registerCmd = &cobra.Command{
	Use:   "register NAME IMAGE",
	Short: "Enrol a new identity from a face photo",
	Long: `Detects the face in IMAGE, computes its embedding and stores it under
NAME. An existing identity with the same name is replaced.`,
	Args: cobra.ExactArgs(2),
	RunE: runRegister,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var renameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename an identity",
	Long:  `Renames the gallery entry. Ledger rows keep the name they were recorded with.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove an identity from the gallery",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var contactCmd = &cobra.Command{
	Use:   "contact NAME ADDRESS",
	Short: "Set the notification address of an identity",
	Long:  `Sets the email address used for present notices. Pass "" to clear it.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runContact,
}

func init() {
	rootCmd.AddCommand(registerCmd, listCmd, renameCmd, deleteCmd, contactCmd)

	registerCmd.Flags().String("contact", "", "Notification email address")
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, path := args[0], args[1]
	contact := mustGetString(cmd, "contact")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	img, err := vision.DecodeImage(data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := vision.InitRuntime(cfg.Vision.RuntimeLib); err != nil {
		return err
	}
	defer vision.DestroyRuntime()
	engine, err := vision.NewEngine(cfg.Vision)
	if err != nil {
		return fmt.Errorf("init vision engine: %w", err)
	}
	defer engine.Close()

	e, err := openEnv(ctx, false, gallery.WithFaceModels(engine, engine))
	if err != nil {
		return err
	}
	defer e.Close()

	entry, err := e.gallery.Register(ctx, name, img, contact)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	fmt.Printf("Registered %s (encrypted: %v)\n", entry.Identity, entry.Encrypted)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tCONTACT\tENCRYPTED")
	fmt.Fprintln(w, "--------\t-------\t---------")
	n := 0
	for name, err := range e.gallery.List(ctx) {
		if err != nil {
			return err
		}
		entry, err := e.gallery.Load(ctx, name)
		if err != nil {
			fmt.Fprintf(w, "%s\t?\t%v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%v\n", entry.Identity, entry.Contact, entry.Encrypted)
		n++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d identities\n", n)
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()

	name, err := e.gallery.Rename(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("rename %s: %w", args[0], err)
	}
	fmt.Printf("Renamed %s to %s\n", args[0], name)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.gallery.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("delete %s: %w", args[0], err)
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runContact(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.gallery.SetContact(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("set contact for %s: %w", args[0], err)
	}
	fmt.Printf("Contact of %s set to %q\n", args[0], args[1])
	return nil
}
