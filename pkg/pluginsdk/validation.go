package pluginsdk

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateOptions validates plugin invocation options against the
// manifest's option schema. A manifest without a schema accepts any
// options.
func (m *Manifest) ValidateOptions(options any) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(m.OptionSchema) == 0 {
		return nil
	}

	schema, err := compileSchema(m.OptionSchema)
	if err != nil {
		return fmt.Errorf("compile option schema: %w", err)
	}

	payload, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("encode plugin options: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode plugin options: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("plugin options invalid: %w", err)
	}

	return nil
}

var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("plugin.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
