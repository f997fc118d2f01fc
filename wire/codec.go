package wire

import (
	"fmt"
	"sort"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"
)

// TemplateCodec converts a template's create arguments.
type TemplateCodec struct {
	// Encode converts a domain entity to its wire record.
	Encode func(entity any) (*structpb.Value, error)
	// Decode converts a wire record back to the domain entity.
	Decode func(v *structpb.Value) (any, error)
}

// ChoiceCodec converts a choice's argument and result.
type ChoiceCodec struct {
	EncodeArg    func(arg any) (*structpb.Value, error)
	DecodeArg    func(v *structpb.Value) (any, error)
	DecodeResult func(v *structpb.Value) (any, error)
}

type choiceKey struct {
	template Identifier
	choice   string
}

var (
	mu        sync.RWMutex
	templates = map[Identifier]TemplateCodec{}
	choices   = map[choiceKey]ChoiceCodec{}
)

// RegisterTemplate registers the codec for a template identifier.
//
// Domain packages typically register in init(); re-registration is an
// error so schema collisions surface at startup rather than at call time.
func RegisterTemplate(id Identifier, c TemplateCodec) error {
	if id.IsZero() {
		return fmt.Errorf("wire: template identifier is required")
	}
	if c.Encode == nil || c.Decode == nil {
		return fmt.Errorf("wire: template %s missing Encode/Decode", id)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := templates[id]; exists {
		return fmt.Errorf("wire: template %s already registered", id)
	}
	templates[id] = c
	return nil
}

// MustRegisterTemplate is like RegisterTemplate but panics on error.
func MustRegisterTemplate(id Identifier, c TemplateCodec) {
	if err := RegisterTemplate(id, c); err != nil {
		panic(err)
	}
}

// RegisterChoice registers the codec for a choice on a template.
func RegisterChoice(id Identifier, choice string, c ChoiceCodec) error {
	if id.IsZero() || choice == "" {
		return fmt.Errorf("wire: choice registration requires template identifier and choice name")
	}
	if c.EncodeArg == nil || c.DecodeArg == nil || c.DecodeResult == nil {
		return fmt.Errorf("wire: choice %s on %s missing converters", choice, id)
	}
	mu.Lock()
	defer mu.Unlock()
	k := choiceKey{template: id, choice: choice}
	if _, exists := choices[k]; exists {
		return fmt.Errorf("wire: choice %s on %s already registered", choice, id)
	}
	choices[k] = c
	return nil
}

// MustRegisterChoice is like RegisterChoice but panics on error.
func MustRegisterChoice(id Identifier, choice string, c ChoiceCodec) {
	if err := RegisterChoice(id, choice, c); err != nil {
		panic(err)
	}
}

func templateCodec(id Identifier) (TemplateCodec, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := templates[id]
	if !ok {
		return TemplateCodec{}, newError(KindSchemaMismatch, fmt.Sprintf("unknown template %s", id))
	}
	return c, nil
}

func choiceCodec(id Identifier, choice string) (ChoiceCodec, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := choices[choiceKey{template: id, choice: choice}]
	if !ok {
		return ChoiceCodec{}, newError(KindSchemaMismatch, fmt.Sprintf("unknown choice %s on %s", choice, id))
	}
	return c, nil
}

// EncodeTemplate converts entity to the create-arguments record for id.
func EncodeTemplate(id Identifier, entity any) (*structpb.Value, error) {
	c, err := templateCodec(id)
	if err != nil {
		return nil, err
	}
	return c.Encode(entity)
}

// DecodeTemplate converts a create-arguments record back to the entity.
func DecodeTemplate(id Identifier, v *structpb.Value) (any, error) {
	c, err := templateCodec(id)
	if err != nil {
		return nil, err
	}
	return c.Decode(v)
}

// EncodeChoiceArgument converts arg to the wire argument of a choice.
func EncodeChoiceArgument(id Identifier, choice string, arg any) (*structpb.Value, error) {
	c, err := choiceCodec(id, choice)
	if err != nil {
		return nil, err
	}
	return c.EncodeArg(arg)
}

// DecodeChoiceArgument converts a wire argument back to the domain value.
func DecodeChoiceArgument(id Identifier, choice string, v *structpb.Value) (any, error) {
	c, err := choiceCodec(id, choice)
	if err != nil {
		return nil, err
	}
	return c.DecodeArg(v)
}

// DecodeChoiceResult converts a choice's exercise result to the domain value.
func DecodeChoiceResult(id Identifier, choice string, v *structpb.Value) (any, error) {
	c, err := choiceCodec(id, choice)
	if err != nil {
		return nil, err
	}
	return c.DecodeResult(v)
}

// RegisteredTemplates returns all registered template identifiers, sorted.
func RegisteredTemplates() []Identifier {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Identifier, 0, len(templates))
	for id := range templates {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// RegisteredChoices returns (template, choice) pairs for all registered
// choices, sorted for stable iteration in tests.
func RegisteredChoices() [][2]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([][2]string, 0, len(choices))
	for k := range choices {
		out = append(out, [2]string{k.template.String(), k.choice})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}
