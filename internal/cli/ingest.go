package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Finalize a conversation transcript as an episode",
		Long: "Read a transcript (file or stdin), one turn per line as 'speaker: text',\n" +
			"and finalize it as an immutable episode. Indexing runs in the background.",
		Run: runIngest,
	}
	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open transcript", err)
		}
		defer f.Close()
		r = f
	}

	turns, err := parseTranscript(r)
	if err != nil {
		exitErr("parse transcript", err)
	}
	if len(turns) == 0 {
		exitErr("ingest", fmt.Errorf("transcript has no turns"))
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open engine", err)
	}
	defer eng.Close()

	meta := model.SessionMeta{
		StartedAt: turns[0].At,
		EndedAt:   turns[len(turns)-1].At,
	}
	ep, err := eng.FinalizeTurns(cmd.Context(), turns, meta)
	if err != nil {
		exitErr("finalize", err)
	}

	// Give the background worker a moment to land the index entry
	// before the process exits; queries tolerate it either way.
	time.Sleep(200 * time.Millisecond)

	b, _ := json.Marshal(map[string]interface{}{
		"id":    ep.ID,
		"turns": ep.Meta.TurnCount,
	})
	fmt.Println(string(b))
}

// parseTranscript reads 'speaker: text' lines. Lines without a known
// speaker prefix continue the previous turn.
func parseTranscript(r io.Reader) ([]model.Turn, error) {
	var turns []model.Turn
	now := time.Now().UTC()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}

		var speaker model.Speaker
		var text string
		if i := strings.Index(line, ":"); i > 0 {
			sp := model.Speaker(strings.ToLower(strings.TrimSpace(line[:i])))
			if model.ValidSpeakers[sp] {
				speaker = sp
				text = strings.TrimSpace(line[i+1:])
			}
		}

		if speaker == "" {
			if len(turns) == 0 {
				return nil, fmt.Errorf("first line must start with a speaker tag (user:, assistant:, system:)")
			}
			turns[len(turns)-1].Text += "\n" + strings.TrimSpace(line)
			continue
		}

		turns = append(turns, model.Turn{
			Speaker: speaker,
			Text:    text,
			At:      now.Add(time.Duration(len(turns)) * time.Second),
		})
	}
	return turns, sc.Err()
}
