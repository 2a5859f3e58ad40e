// Command loom is the CLI for the conversational seq2seq stack: train a
// tokenizer, chat against a checkpoint, inspect checkpoint metadata.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/loom-ml/loom/internal/backend/cpu"
	"github.com/loom-ml/loom/internal/config"
	"github.com/loom-ml/loom/internal/engine"
	"github.com/loom-ml/loom/internal/serialization"
	"github.com/loom-ml/loom/internal/tokenizer"
)

const version = "0.1.0"

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "train-tokenizer":
		err = trainTokenizer(os.Args[2:])
	case "tokenize":
		err = tokenize(os.Args[2:])
	case "chat":
		err = runChat(os.Args[2:], log)
	case "inspect":
		err = inspect(os.Args[2:])
	case "version":
		fmt.Println("loom", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg(os.Args[1] + " failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: loom <command> [flags]

commands:
  train-tokenizer  learn a BPE vocabulary from a text corpus
  tokenize         encode text and print its token IDs
  chat             interactive REPL against a model checkpoint
  inspect          print checkpoint metadata
  version          print the version`)
}

func trainTokenizer(args []string) error {
	fs := flag.NewFlagSet("train-tokenizer", flag.ExitOnError)
	corpus := fs.String("corpus", "", "path to a text corpus, one document per line")
	out := fs.String("out", "tokenizer.json", "output path")
	vocab := fs.Int("vocab", 8000, "target vocabulary size")
	fs.Parse(args)

	if *corpus == "" {
		return fmt.Errorf("missing required -corpus flag")
	}
	file, err := os.Open(*corpus)
	if err != nil {
		return fmt.Errorf("opening corpus: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading corpus: %w", err)
	}

	tok := tokenizer.NewBPE(*vocab)
	tok.Train(lines)
	if err := tok.Save(*out); err != nil {
		return err
	}
	fmt.Printf("trained %d-token vocabulary (%d merges) from %d lines -> %s\n",
		tok.VocabSize(), tok.Merges(), len(lines), *out)
	return nil
}

func tokenize(args []string) error {
	fs := flag.NewFlagSet("tokenize", flag.ExitOnError)
	tokPath := fs.String("tokenizer", "", "path to a trained tokenizer.json")
	encoding := fs.String("encoding", "", "tiktoken encoding name (e.g. cl100k_base) instead of a trained tokenizer")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("missing text argument")
	}
	text := strings.Join(fs.Args(), " ")

	var (
		tok tokenizer.Tokenizer
		err error
	)
	switch {
	case *encoding != "":
		tok, err = tokenizer.NewTikToken(*encoding)
	case *tokPath != "":
		tok, err = tokenizer.LoadBPE(*tokPath)
	default:
		return fmt.Errorf("need either -tokenizer or -encoding")
	}
	if err != nil {
		return err
	}

	ids, err := tok.Encode(text, false)
	if err != nil {
		return err
	}
	fmt.Printf("%d tokens: %v\n", len(ids), ids)
	return nil
}

func runChat(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "optional config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	eng, err := engine.New(cpu.New(), cfg.TokenizerPath, cfg.ModelPath, engine.Options{
		MaxLen:           cfg.Generation.MaxLen,
		MaxTurns:         cfg.Context.MaxTurns,
		MaxContextTokens: cfg.Context.MaxTokens,
		Logger:           &log,
	})
	if err != nil {
		return err
	}

	fmt.Println("loom chat. /clear resets context, /quit exits.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit":
			return nil
		case input == "/clear":
			eng.ClearContext()
			fmt.Println("context cleared")
			continue
		}

		method, err := cfg.Generation.DecodingMethod(time.Now().UnixNano())
		if err != nil {
			return err
		}
		reply, err := eng.Generate(input, method, true)
		if err != nil {
			log.Error().Err(err).Msg("generation failed")
			continue
		}
		fmt.Println(reply)
	}
}

func inspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	modelPath := fs.String("model", "model.loom", "checkpoint path")
	fs.Parse(args)

	header, err := serialization.ReadHeader(*modelPath)
	if err != nil {
		return err
	}

	m := header.Model
	fmt.Printf("created:  %s\n", header.CreatedAt.Format(time.RFC3339))
	fmt.Printf("model:    d_model=%d heads=%d enc=%d dec=%d ff=%d max_len=%d\n",
		m.DModel, m.NumHeads, m.NumEncoderLayers, m.NumDecoderLayers, m.FFDim, m.MaxLen)
	fmt.Printf("vocab:    src=%d tgt=%d\n", m.SrcVocabSize, m.TgtVocabSize)

	var params uint64
	for _, t := range header.Tensors {
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		params += uint64(n)
	}
	fmt.Printf("tensors:  %d (%d parameters)\n", len(header.Tensors), params)
	for _, t := range header.Tensors {
		fmt.Printf("  %-50s %-8s %v\n", t.Name, t.DType, t.Shape)
	}
	return nil
}
