package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ParseStylePackTable reads style packs from a Markdown table. The header row
// names the columns; name, cost and system_prompt are required, description
// and active are optional.
//
//	| name | cost | description | system_prompt |
//	|------|------|-------------|---------------|
//	| Pirate | 20 | Talks like a pirate | You are a pirate... |
func ParseStylePackTable(content string) ([]StylePack, error) {
	var (
		header map[string]int
		packs  []StylePack
	)
	for i, line := range strings.Split(content, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if trimmedLine == "" {
			continue
		}
		if !strings.HasPrefix(trimmedLine, "|") || !strings.HasSuffix(trimmedLine, "|") {
			log.Debug().Int("line", i+1).Msg("Skipping line not matching table row format")
			continue
		}
		cells := splitRow(trimmedLine)

		if header == nil {
			header = make(map[string]int, len(cells))
			for idx, cell := range cells {
				header[strings.ToLower(cell)] = idx
			}
			for _, required := range []string{"name", "cost", "system_prompt"} {
				if _, ok := header[required]; !ok {
					return nil, fmt.Errorf("style pack table is missing the %q column", required)
				}
			}
			continue
		}
		if isSeparatorRow(cells) {
			continue
		}

		cell := func(name string) string {
			idx, ok := header[name]
			if !ok || idx >= len(cells) {
				return ""
			}
			return cells[idx]
		}

		pack := StylePack{
			Name:         cell("name"),
			Description:  cell("description"),
			SystemPrompt: cell("system_prompt"),
			IsActive:     true,
		}
		if pack.Name == "" || pack.SystemPrompt == "" {
			log.Warn().Int("line", i+1).Msg("Skipping style pack row with empty name or system prompt")
			continue
		}
		cost, err := strconv.Atoi(cell("cost"))
		if err != nil || cost < 0 {
			return nil, fmt.Errorf("line %d: invalid cost %q for style pack %q", i+1, cell("cost"), pack.Name)
		}
		pack.Cost = cost
		if active := cell("active"); active != "" {
			pack.IsActive, err = strconv.ParseBool(active)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid active flag %q", i+1, active)
			}
		}
		packs = append(packs, pack)
	}
	return packs, nil
}

func splitRow(line string) []string {
	parts := strings.Split(strings.Trim(line, "|"), "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

// SeedStylePacksFromFile upserts every pack in the Markdown table at filePath.
func (s *Store) SeedStylePacksFromFile(ctx context.Context, filePath string) (int, error) {
	contentBytes, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read style pack file %s: %w", filePath, err)
	}
	packs, err := ParseStylePackTable(string(contentBytes))
	if err != nil {
		return 0, err
	}
	if len(packs) == 0 {
		log.Warn().Str("file", filePath).Msg("No style packs found. Ensure the file is a Markdown table with name, cost and system_prompt columns.")
		return 0, nil
	}

	count := 0
	for i := range packs {
		if err := s.UpsertStylePack(ctx, &packs[i]); err != nil {
			return count, err
		}
		count++
	}
	log.Info().Int("count", count).Str("file", filePath).Msg("Seeded style packs")
	return count, nil
}
