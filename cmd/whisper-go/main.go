// Command whisper-go is an offline debug utility for the Multi-modal
// Worker's audio path: it loads a ggml model and runs one WAV file through
// internal/multimodal.WhisperTranscriber outside the queue, so a bad
// transcript can be isolated from embedding/upsert failures.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"ingestpipe/internal/config"
	"ingestpipe/internal/multimodal"
)

func main() {
	log.SetFlags(0)
	var modelPath string
	flag.StringVar(&modelPath, "model", "", "path to the whisper ggml model (defaults to WHISPER_MODEL_PATH)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-model <model_path>] <audio_file.wav>\n", os.Args[0])
		os.Exit(1)
	}
	audioPath := args[0]

	if modelPath == "" {
		cfg, err := config.Load()
		if err == nil {
			modelPath = cfg.Whisper.ModelPath
		}
	}
	if modelPath == "" {
		log.Fatal("no model path given: pass -model or set WHISPER_MODEL_PATH")
	}

	transcriber, err := multimodal.NewWhisperTranscriber(modelPath)
	if err != nil {
		log.Fatalf("load whisper model: %v", err)
	}
	if transcriber == nil {
		log.Fatal("whisper transcription is disabled for an empty model path")
	}

	wavBytes, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("read audio file: %v", err)
	}

	transcript, err := transcriber.Transcribe(wavBytes)
	if err != nil {
		log.Fatalf("transcribe: %v", err)
	}
	fmt.Println(transcript)
}
