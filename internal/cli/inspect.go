package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kwscan/internal/adapter/analyzer"
	"kwscan/internal/domain"
)

var (
	tokensTrivia     bool
	classifyKeywords []string
	classifyLenient  bool
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <file>",
	Short: "Print the token stream of a PHP file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokens,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Print every keyword hit in a PHP file with its role",
	Long: `Classify one file and print every identifier matching a candidate keyword
together with its syntactic role.

Examples:
  kwscan classify src/Builder.php -k with
  kwscan classify legacy.php -k enum,readonly --lenient`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(classifyCmd)
	tokensCmd.Flags().BoolVar(&tokensTrivia, "trivia", false, "include comments")
	classifyCmd.Flags().StringSliceVarP(&classifyKeywords, "keywords", "k", nil, "candidate keywords (default from config)")
	classifyCmd.Flags().BoolVar(&classifyLenient, "lenient", false, "report hits even if the file has unterminated literals")
}

// readSource reads and decodes one file in the configured encoding.
func readSource(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return analyzer.Decode(raw, GetConfig().Scan.Encoding)
}

func runTokens(cmd *cobra.Command, args []string) error {
	src, err := readSource(args[0])
	if err != nil {
		return err
	}
	return printTokens(cmd.OutOrStdout(), src, tokensTrivia)
}

func printTokens(w io.Writer, src []byte, trivia bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tKIND\tTEXT")
	tok := analyzer.NewTokenizer(src)
	for {
		t := tok.Next()
		if t.Kind == analyzer.EOF {
			break
		}
		if t.IsTrivia() && !trivia {
			continue
		}
		text := fmt.Sprintf("%q", t.Text)
		if t.Unterminated {
			text += " (unterminated)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", t.Line, t.Kind, text)
	}
	return tw.Flush()
}

func runClassify(cmd *cobra.Command, args []string) error {
	words := GetConfig().Scan.Keywords
	if cmd.Flags().Changed("keywords") {
		words = classifyKeywords
	}
	if len(words) == 0 {
		return fmt.Errorf("no keywords given, use -k")
	}
	specs, err := domain.ParseKeywords(words)
	if err != nil {
		return err
	}
	src, err := readSource(args[0])
	if err != nil {
		return err
	}

	opts := analyzer.Options{
		MaxTokens:     GetConfig().Scan.MaxTokens,
		MaxNesting:    GetConfig().Scan.MaxNesting,
		Strict:        !classifyLenient,
		CollectLabels: true,
	}
	outcome, err := analyzer.NewClassifier(specs, opts).Classify(src)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return printOutcome(cmd.OutOrStdout(), outcome)
}

func printOutcome(w io.Writer, outcome domain.FileOutcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tKEYWORD\tROLE\tBUCKET")
	for _, m := range outcome.Matches {
		bucket := "hard"
		if m.Role.IsSoft() {
			bucket = "soft"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.Line, m.Keyword, m.Role, bucket)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d hits, %d tokens", len(outcome.Matches), outcome.Tokens)
	if len(outcome.Labels) > 0 {
		fmt.Fprintf(w, ", labels: %s", strings.Join(outcome.Labels, ","))
	}
	fmt.Fprintln(w)
	return nil
}
