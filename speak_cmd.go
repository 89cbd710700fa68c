package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/markdown"
	"github.com/dgnsrekt/speakstream/internal/queue"
	"github.com/dgnsrekt/speakstream/internal/stream"
)

var (
	voiceID      string
	speed        float64
	streamOutput bool
	outFile      string
	watchFile    bool
	dryRun       bool
	asMarkdown   bool
	keepCode     bool
	keepURLs     bool

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT|FILE|-]",
		Short: "Speak text, a file or stdin",
		Long: paragraph(fmt.Sprintf("\n%s text aloud. Text is read from the arguments, a file, or stdin when it is piped. Markdown files are reduced to their prose first.", keyword("Speak"))),
		Example: paragraph("speakstream speak \"Hello there.\"\n" +
			"speakstream speak --stream README.md\n" +
			"cat notes.txt | speakstream speak --out notes.wav"),
		RunE: runSpeak,
	}
)

func init() {
	flags := speakCmd.Flags()
	flags.StringVarP(&voiceID, "voice", "v", "", "voice id (default from config)")
	flags.Float64VarP(&speed, "speed", "s", 0, "speaking rate, 1.0 is normal (default from config)")
	flags.BoolVar(&streamOutput, "stream", false, "start playback before the whole text is synthesized")
	flags.StringVarP(&outFile, "out", "o", "", "write a WAV file instead of playing")
	flags.BoolVarP(&watchFile, "watch", "w", false, "speak FILE again whenever it changes")
	flags.BoolVar(&dryRun, "dry-run", false, "simulate playback without an audio device")
	flags.BoolVarP(&asMarkdown, "markdown", "m", false, "treat input as markdown")
	flags.BoolVar(&keepCode, "keep-code", false, "read code in markdown input")
	flags.BoolVar(&keepURLs, "keep-urls", false, "read URLs in markdown input")

	_ = viper.BindPFlag("voices.default", flags.Lookup("voice"))
	_ = viper.BindPFlag("audio.speed", flags.Lookup("speed"))
}

// input is the text to speak and the file it came from, if any.
type input struct {
	text string
	path string
}

// readInput resolves the speak arguments. A single argument naming a
// file reads that file; "-" or no arguments read stdin unless it is a
// terminal; anything else is the text itself.
func readInput(args []string, stdin io.Reader, stdinIsTerminal bool) (input, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		if stdinIsTerminal {
			return input{}, errors.New("no text given: pass TEXT, a FILE, or pipe text to stdin")
		}
		b, err := io.ReadAll(stdin)
		if err != nil {
			return input{}, fmt.Errorf("unable to read from stdin: %w", err)
		}
		return input{text: string(b)}, nil
	}

	if len(args) == 1 {
		if st, err := os.Stat(args[0]); err == nil && !st.IsDir() {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return input{}, fmt.Errorf("unable to open file: %w", err)
			}
			return input{text: string(b), path: args[0]}, nil
		}
	}
	return input{text: strings.Join(args, " ")}, nil
}

// prose returns the text to synthesize for in.
func prose(in input, forceMarkdown bool, opts markdown.Options) string {
	if forceMarkdown || (in.path != "" && markdown.IsMarkdown(in.path)) {
		return markdown.ExtractText([]byte(in.text), opts)
	}
	return in.text
}

func markdownOptions() markdown.Options {
	return markdown.Options{SkipCode: !keepCode, SkipURLs: !keepURLs}
}

func runSpeak(cmd *cobra.Command, args []string) error {
	in, err := readInput(args, cmd.InOrStdin(), term.IsTerminal(int(os.Stdin.Fd())))
	if err != nil {
		return err
	}
	if watchFile && in.path == "" {
		return errors.New("--watch needs a FILE argument")
	}
	if watchFile && outFile != "" {
		return errors.New("cannot use --watch with --out")
	}

	text := prose(in, asMarkdown, markdownOptions())
	if strings.TrimSpace(text) == "" && !watchFile {
		return errors.New("nothing to speak")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Debug("Cleanup failed", "error", err)
		}
	}()

	if err := a.loadModel(ctx); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outFile != "" {
		return writeClip(ctx, a, text, outFile, w)
	}

	players, err := a.players(dryRun)
	if err != nil {
		return err
	}
	if watchFile {
		return watch(ctx, a, players, in.path, cmd.ErrOrStderr())
	}
	if streamOutput {
		return streamText(ctx, a, players, text, cmd.ErrOrStderr())
	}
	return playClip(ctx, a, players, text, w)
}

// writeClip synthesizes text and moves the clip to path.
func writeClip(ctx context.Context, a *app, text, path string, w io.Writer) error {
	clip, err := a.synth.GenerateAudio(ctx, text, a.cfg.Voices.Default, a.cfg.Audio.Speed)
	if err != nil {
		return err
	}
	src, err := audio.PathFromURI(clip.URI)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("unable to read clip: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	_ = a.synth.Remove(clip.URI)

	field(w, "File", path)
	field(w, "Duration", formatDuration(clip.Duration))
	field(w, "Size", formatBytes(int64(len(data))))
	field(w, "Tokens", clip.Tokens)
	if clip.CacheHit {
		field(w, "Cache", "hit")
	}
	return nil
}

// playClip synthesizes text in one piece and plays it.
func playClip(ctx context.Context, a *app, players audio.PlayerFactory, text string, w io.Writer) error {
	clip, err := a.synth.GenerateAudio(ctx, text, a.cfg.Voices.Default, a.cfg.Audio.Speed)
	if err != nil {
		return err
	}

	q := queue.New(players, a.synth, a.cfg.ToStreamConfig().Queue)
	if err := q.Push(queue.Chunk{Index: 0, URI: clip.URI, Duration: clip.Duration, Text: text}); err != nil {
		return err
	}
	q.Close()

	field(w, "Duration", formatDuration(clip.Duration))
	field(w, "Tokens", clip.Tokens)

	select {
	case <-q.Done():
		return nil
	case <-ctx.Done():
		q.Stop()
		return ctx.Err()
	}
}

// streamText plays text chunk by chunk and reports progress to w.
func streamText(ctx context.Context, a *app, players audio.PlayerFactory, text string, w io.Writer) error {
	s, err := a.streamer(players)
	if err != nil {
		return err
	}

	res, err := s.StreamAudio(ctx, text, a.cfg.Voices.Default, a.cfg.Audio.Speed, progressPrinter(w))
	if err != nil {
		return err
	}
	field(w, "First audio", formatDuration(res.TimeToFirstAudio))

	select {
	case <-res.Done:
	case <-ctx.Done():
		s.StopStreaming()
		return ctx.Err()
	}

	field(w, "Tokens/sec", fmt.Sprintf("%.1f", s.TokensPerSecond()))
	return nil
}

// progressPrinter renders session events.
func progressPrinter(w io.Writer) stream.ProgressFunc {
	return func(ev stream.Event) {
		switch e := ev.(type) {
		case stream.ChunkReady:
			fmt.Fprintf(w, "%s %s\n", chunkStyle.Render(fmt.Sprintf("[%d/%d]", e.Index+1, e.Total)), dimStyle.Render(e.Text))
		case stream.ChunkFailed:
			fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("[%d/%d] skipped: %v", e.Index+1, e.Total, e.Err)))
		case stream.StateChanged:
			log.Debug("Stream state", "from", e.From, "to", e.To)
		case stream.Completed:
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("played %d, skipped %d in %s", e.Played, e.Skipped, formatDuration(e.Elapsed))))
		}
	}
}
