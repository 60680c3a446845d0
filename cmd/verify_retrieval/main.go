package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"oncare-chatbot-be/internal/bootstrap"
	"oncare-chatbot-be/internal/config"
	"oncare-chatbot-be/pkg/database"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Case is one labelled query. A case expecting abstention passes when the gate rejects the
// retrieval; otherwise it passes when ExpectSource appears among the top-k chunks.
type Case struct {
	Question      string `yaml:"question"`
	ExpectSource  string `yaml:"expect_source"`
	ExpectAbstain bool   `yaml:"expect_abstain"`
}

type caseFile struct {
	TopK  int    `yaml:"top_k"`
	Cases []Case `yaml:"cases"`
}

func main() {
	file := flag.String("file", "", "path to a cases.yaml file")
	flag.Parse()
	if *file == "" {
		color.Red("Usage: verify_retrieval -file cases.yaml")
		os.Exit(2)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		color.Red("Failed to read %s: %v", *file, err)
		os.Exit(1)
	}
	var cases caseFile
	if err := yaml.Unmarshal(data, &cases); err != nil {
		color.Red("Failed to parse %s: %v", *file, err)
		os.Exit(1)
	}

	cfg := config.Load()
	if cases.TopK <= 0 {
		cases.TopK = cfg.Rag.TopK
	}

	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.DefaultPoolConfig(), cfg.Database.LogLevel)
		if err != nil {
			log.Fatalf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	color.Cyan("🔎 Verifying %d retrieval cases (top_k=%d)\n", len(cases.Cases), cases.TopK)

	ctx := context.Background()
	passed := 0
	for i, c := range cases.Cases {
		result, err := container.Retriever.Retrieve(ctx, c.Question, cases.TopK)
		if err != nil {
			color.Red("[%d] ERROR %q: %v", i+1, c.Question, err)
			continue
		}

		confident := container.Gate.Evaluate(result)
		found := false
		for _, rc := range result {
			if rc.Chunk.Metadata.SourceURL == c.ExpectSource {
				found = true
				break
			}
		}

		ok := confident && found
		if c.ExpectAbstain {
			ok = !confident
		}

		detail := fmt.Sprintf("top=%.3f confident=%t", result.TopScore(), confident)
		if ok {
			passed++
			color.Green("[%d] PASS %q (%s)", i+1, c.Question, detail)
		} else {
			color.Red("[%d] FAIL %q (%s)", i+1, c.Question, detail)
		}
	}

	color.Cyan("\n%d/%d cases passed", passed, len(cases.Cases))
	if passed != len(cases.Cases) {
		os.Exit(1)
	}
}
