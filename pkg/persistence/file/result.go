package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/healthsim/healthsim/pkg/models"
)

const resultDirPerm = 0o755
const resultFilePerm = 0o644

// ResultRepository writes execution results under
// <root>/output/<runID>/<entity>_<product>.json.
type ResultRepository struct {
	root string
}

func NewResultRepository(root string) *ResultRepository {
	return &ResultRepository{root: root}
}

func (rr *ResultRepository) SaveResult(_ context.Context, runID string, result *models.ExecutionResult) error {
	dir := path.Join(rr.root, "output", runID)

	if err := os.MkdirAll(dir, resultDirPerm); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution result: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", result.EntityID, result.Product)

	if err := os.WriteFile(path.Join(dir, name), body, resultFilePerm); err != nil {
		return fmt.Errorf("failed to write execution result: %w", err)
	}

	return nil
}
