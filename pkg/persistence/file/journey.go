package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/persistence"
)

// JourneyRepository loads journey documents from <root>/journeys/*.json.
// Documents are validated twice on every load: structurally against the
// JSON schema, then semantically via the model's own validation. A document
// that fails either check never reaches the scheduler.
type JourneyRepository struct {
	root string
}

func NewJourneyRepository(root string) *JourneyRepository {
	return &JourneyRepository{root: root}
}

func (jr *JourneyRepository) All(ctx context.Context) ([]*models.JourneySpecification, error) {
	dir := os.DirFS(path.Join(jr.root, "journeys"))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, &persistence.JourneyError{Op: "All", Err: err, Message: "failed to list journey files"}
	}

	journeys := make([]*models.JourneySpecification, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		name := strings.TrimSuffix(file, ".json")

		journey, err := jr.ByName(ctx, name)
		if err != nil {
			return nil, err
		}

		journeys = append(journeys, journey)
	}

	sort.Slice(journeys, func(i, j int) bool {
		return journeys[i].Name < journeys[j].Name
	})

	return journeys, nil
}

func (jr *JourneyRepository) ByName(_ context.Context, name string) (*models.JourneySpecification, error) {
	body, err := os.ReadFile(path.Join(jr.root, "journeys", name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.JourneyError{Op: "ByName", Journey: name, Err: persistence.ErrJourneyNotFound}
		}

		return nil, &persistence.JourneyError{Op: "ByName", Journey: name, Err: err}
	}

	if err := validateSchema(body); err != nil {
		return nil, &persistence.JourneyError{
			Op:      "ByName",
			Journey: name,
			Err:     persistence.ErrInvalidJourneyDocument,
			Message: err.Error(),
		}
	}

	var journey models.JourneySpecification

	if err := json.Unmarshal(body, &journey); err != nil {
		return nil, &persistence.JourneyError{Op: "ByName", Journey: name, Err: err, Message: "failed to parse journey document"}
	}

	if err := journey.Validate(); err != nil {
		return nil, &persistence.JourneyError{
			Op:      "ByName",
			Journey: name,
			Err:     persistence.ErrInvalidJourneyDocument,
			Message: err.Error(),
		}
	}

	return &journey, nil
}

func validateSchema(body []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(models.JourneySchema)
	documentLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return fmt.Errorf("JSON schema validation failed: %s", strings.Join(messages, "; "))
	}

	return nil
}
