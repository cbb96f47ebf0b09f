package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Yates-Labs/gobot/internal/dialog"
	"github.com/Yates-Labs/gobot/internal/iterator"
	"github.com/Yates-Labs/gobot/internal/orchestrator"
	"github.com/Yates-Labs/gobot/internal/pipeline"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	inspectSplit     string
	inspectLimit     int
	inspectBoundary  string
	inspectBatchSize int
	inspectShuffle   bool
	inspectSeed      int64
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [data-dir]",
	Short: "Group a DSTC2 dataset and display its dialogues",
	Long: `Read the DSTC2 jsonlist files in a directory, regroup the turns into
dialogues and display them.

Each dialogue shows:
- Dialogue ID
- Number of turns
- Number of distinct system actions
- First user utterance

Examples:
  gobot inspect ~/.gobot/downloads/dstc2
  gobot inspect ./data --split valid --limit 0
  gobot inspect ./data --split all
  gobot inspect ./data --batch-size 4 --shuffle --seed 42`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectSplit, "split", "train", "Split to display: train, valid, test or all")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 20, "Maximum number of dialogues to list (0 lists all)")
	inspectCmd.Flags().StringVar(&inspectBoundary, "boundary", string(dialog.BoundaryStart), "Whether episode_done marks the start or the end of a dialogue")
	inspectCmd.Flags().IntVar(&inspectBatchSize, "batch-size", 0, "Also list batches of this many dialogues")
	inspectCmd.Flags().BoolVar(&inspectShuffle, "shuffle", false, "Shuffle dialogues before batching")
	inspectCmd.Flags().Int64Var(&inspectSeed, "seed", 0, "Seed for --shuffle")
}

// groupDataDir reads a DSTC2 directory and groups it into dialogues
func groupDataDir(ctx context.Context, dataDir string, itCfg pipeline.IteratorConfig) (*iterator.DialogIterator, error) {
	itCfg.ClassName = iterator.ClassDialogIterator
	cfg := &pipeline.Config{
		DatasetReader: pipeline.ReaderConfig{
			ClassName: orchestrator.ClassDSTC2Reader,
			DataPath:  dataDir,
		},
		DatasetIterator: itCfg,
	}
	if err := cfg.ValidateDataset(); err != nil {
		return nil, err
	}
	return orchestrator.PrepareDataset(ctx, cfg, orchestrator.NewDefaultReaders())
}

func runInspect(cmd *cobra.Command, args []string) error {
	seed := inspectSeed
	it, err := groupDataDir(cmd.Context(), args[0], pipeline.IteratorConfig{
		Seed:     &seed,
		Shuffle:  inspectShuffle,
		Boundary: inspectBoundary,
	})
	if err != nil {
		return fmt.Errorf("inspect failed: %w", err)
	}

	dialogues, err := it.Dialogues(inspectSplit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(dialogues) == 0 {
		fmt.Fprintf(w, "No dialogues found in split %s\n", inspectSplit)
		return nil
	}

	outputTable(w, dialogues, inspectLimit)

	if inspectBatchSize > 0 {
		batches, err := it.DefaultBatches(inspectSplit, inspectBatchSize)
		if err != nil {
			return err
		}
		outputBatches(w, batches, it.Options())
	}
	return nil
}

// outputBatches lists the size of every batch in iteration order
func outputBatches(w io.Writer, batches []iterator.Batch, options iterator.Options) {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD"))

	order := "in order"
	if options.Shuffle {
		order = fmt.Sprintf("shuffled, seed %d", options.Seed)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, style.Render(fmt.Sprintf("%d batches (%s)", len(batches), order)))

	for i, b := range batches {
		turns := 0
		for _, x := range b.X {
			turns += len(x)
		}
		first := ""
		if b.Len() > 0 {
			lead := dialog.Dialogue{X: b.X[0]}
			first = lead.FirstUserText()
		}
		fmt.Fprintf(w, "  batch %-4d %3d dialogues %5d turns  %s\n", i+1, b.Len(), turns, truncate(first, 40))
	}
}

func outputTable(w io.Writer, dialogues []dialog.Dialogue, limit int) {
	// LipGloss signature purple/pink palette
	var (
		headerColor   = lipgloss.Color("#F780FF") // Bright pink/magenta
		dialogueColor = lipgloss.Color("#BD93F9") // Purple
		numberColor   = lipgloss.Color("#FF79C6") // Pink
		textColor     = lipgloss.Color("#E9E9F4") // Light purple/white
		borderColor   = lipgloss.Color("#6272A4") // Muted purple
		summaryColor  = lipgloss.Color("#8BE9FD") // Cyan accent
	)

	const (
		idWidth     = 16
		turnWidth   = 8
		actionWidth = 10
		textWidth   = 48
	)

	headerStyle := lipgloss.NewStyle().
		Foreground(headerColor).
		Bold(true).
		Padding(0, 1)

	borderStyle := lipgloss.NewStyle().Foreground(borderColor)

	headers := []string{
		headerStyle.Width(idWidth).Render("DIALOGUE"),
		headerStyle.Width(turnWidth).Render("TURNS"),
		headerStyle.Width(actionWidth).Render("ACTIONS"),
		headerStyle.Width(textWidth).Render("FIRST UTTERANCE"),
	}
	fmt.Fprintln(w, strings.Join(headers, borderStyle.Render("│")))

	separatorParts := []string{
		strings.Repeat("─", idWidth),
		strings.Repeat("─", turnWidth),
		strings.Repeat("─", actionWidth),
		strings.Repeat("─", textWidth),
	}
	fmt.Fprintln(w, borderStyle.Render(strings.Join(separatorParts, "┼")))

	idStyle := lipgloss.NewStyle().
		Foreground(dialogueColor).
		Padding(0, 1).
		Width(idWidth)

	turnStyle := lipgloss.NewStyle().
		Foreground(numberColor).
		Padding(0, 1).
		Width(turnWidth).
		Align(lipgloss.Right)

	actionStyle := lipgloss.NewStyle().
		Foreground(numberColor).
		Padding(0, 1).
		Width(actionWidth).
		Align(lipgloss.Right)

	textStyle := lipgloss.NewStyle().
		Foreground(textColor).
		Padding(0, 1).
		Width(textWidth)

	shown := dialogues
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	for i := range shown {
		d := &shown[i]

		cells := []string{
			idStyle.Render(d.ID),
			turnStyle.Render(fmt.Sprintf("%d", d.Len())),
			actionStyle.Render(fmt.Sprintf("%d", len(d.UniqueActions()))),
			textStyle.Render(truncate(d.FirstUserText(), textWidth-2)),
		}

		fmt.Fprintln(w, strings.Join(cells, borderStyle.Render("│")))
	}

	summaryStyle := lipgloss.NewStyle().
		Foreground(summaryColor).
		Italic(true)

	fmt.Fprintln(w)
	if len(shown) < len(dialogues) {
		fmt.Fprintln(w, summaryStyle.Render(fmt.Sprintf("Showing %d of %d dialogues", len(shown), len(dialogues))))
	}

	counts := dialog.ActionCounts(dialogues)
	summary := fmt.Sprintf("Total: %d dialogues, %d turns, %d distinct actions",
		len(dialogues), dialog.TurnCount(dialogues), len(counts))
	fmt.Fprintln(w, summaryStyle.Render(summary))

	top := dialog.SortedActions(counts)
	if len(top) > 5 {
		top = top[:5]
	}
	for _, act := range top {
		fmt.Fprintln(w, summaryStyle.Render(fmt.Sprintf("  %-28s %d", act, counts[act])))
	}
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
