package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// ─── Administrative commands ────────────────────────────────────────────────
// One-shot operations against the configured database. Each command wires
// the full service stack, runs once, and closes the store.

func init() {
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(credibilityCmd)
	rootCmd.AddCommand(authorityCmd)
	rootCmd.AddCommand(sweepCmd)

	grantCmd.Flags().StringP("reason", "r", "", "Reason for the grant (required)")
}

// ─── grant ──────────────────────────────────────────────────────────────────

var grantCmd = &cobra.Command{
	Use:   "grant CHILD_ID AMOUNT",
	Short: "Grant bonus XP to a child",
	Long: `Directly credit XP to a child's balance, bypassing the soft cap.
A non-empty reason is required and recorded in the transaction log.`,
	Args: cobra.ExactArgs(2),
	RunE: runGrant,
}

func runGrant(cmd *cobra.Command, args []string) error {
	childID := args[0]
	amount, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("amount must be an integer: %q", args[1])
	}
	reason, _ := cmd.Flags().GetString("reason")
	if reason == "" {
		return fmt.Errorf("a reason is required: chorequest grant %s %d -r \"...\"", childID, amount)
	}

	d, err := loadDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Ledger().Grant(childID, amount, reason); err != nil {
		return err
	}
	bal, err := d.Ledger().Balance(childID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✅ Granted %d XP to %s (%s)\n", amount, childID, reason)
	fmt.Fprintf(os.Stdout, "   New balance: %d XP\n", bal.CurrentXP)
	return nil
}

// ─── balance ────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance CHILD_ID",
	Short: "Show a child's XP balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	d, err := loadDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	bal, err := d.Ledger().Balance(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Balance for %s:\n", bal.UserID)
	fmt.Fprintf(os.Stdout, "  Current XP:      %d\n", bal.CurrentXP)
	fmt.Fprintf(os.Stdout, "  Lifetime earned: %d\n", bal.LifetimeEarned)
	fmt.Fprintf(os.Stdout, "  Lifetime spent:  %d\n", bal.LifetimeSpent)
	return nil
}

// ─── credibility ────────────────────────────────────────────────────────────

var credibilityCmd = &cobra.Command{
	Use:   "credibility CHILD_ID",
	Short: "Show a child's credibility status",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredibility,
}

func runCredibility(cmd *cobra.Command, args []string) error {
	d, err := loadDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	st, err := d.Trust().Status(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Credibility for %s:\n", st.UserID)
	fmt.Fprintf(os.Stdout, "  Score:           %d (%s, %.1f× earning)\n", st.Score, st.Tier.Name, st.Tier.Multiplier)
	fmt.Fprintf(os.Stdout, "  Conversion rate: %.2f\n", st.ConversionRate)
	fmt.Fprintf(os.Stdout, "  Approval streak: %d\n", st.Streak)
	if st.RedemptionBonus && st.BonusExpiry != nil {
		fmt.Fprintf(os.Stdout, "  🎉 Redemption bonus active until %s\n", st.BonusExpiry.Format("2006-01-02 15:04"))
	}
	return nil
}

// ─── authority ──────────────────────────────────────────────────────────────

var authorityCmd = &cobra.Command{
	Use:   "authority GUARDIAN_ID CHILD_ID",
	Short: "Grant a guardian review authority over a child",
	Args:  cobra.ExactArgs(2),
	RunE:  runAuthority,
}

func runAuthority(cmd *cobra.Command, args []string) error {
	d, err := loadDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Workflow().GrantReviewAuthority(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✅ %s may now review tasks for %s\n", args[0], args[1])
	return nil
}

// ─── sweep ──────────────────────────────────────────────────────────────────

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the decay and expiry sweeps once",
	Long: `Run both corrective sweeps immediately: restore decayed credibility
penalties past their 30/60-day marks and expire overdue assignments.
The daemon runs these on a schedule; this command is for catch-up after
downtime.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	d, err := loadDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	restored, err := d.Trust().ApplyDecay()
	if err != nil {
		return fmt.Errorf("decay sweep: %w", err)
	}
	expired, err := d.Workflow().ExpireSweep()
	if err != nil {
		return fmt.Errorf("expiry sweep: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Decay sweep:  %d penalties restored\n", restored)
	fmt.Fprintf(os.Stdout, "Expiry sweep: %d assignments expired\n", expired)
	return nil
}
