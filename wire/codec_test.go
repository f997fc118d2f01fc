package wire

import (
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

type widget struct {
	Name  string
	Count int64
}

func widgetCodec() TemplateCodec {
	return TemplateCodec{
		Encode: func(entity any) (*structpb.Value, error) {
			w := entity.(widget)
			return Record(
				Field{Name: "name", Value: Text(w.Name)},
				Field{Name: "count", Value: Int64(w.Count)},
			), nil
		},
		Decode: func(v *structpb.Value) (any, error) {
			nameV, err := GetField(v, "name")
			if err != nil {
				return nil, err
			}
			name, err := AsText(nameV)
			if err != nil {
				return nil, err
			}
			countV, err := GetField(v, "count")
			if err != nil {
				return nil, err
			}
			count, err := AsInt64(countV)
			if err != nil {
				return nil, err
			}
			return widget{Name: name, Count: count}, nil
		},
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	id := Identifier{PackageID: "#wiretest", ModuleName: "Test.Registry", EntityName: "Widget"}
	MustRegisterTemplate(id, widgetCodec())

	in := widget{Name: "w", Count: 7}
	v, err := EncodeTemplate(id, in)
	if err != nil {
		t.Fatalf("EncodeTemplate: %v", err)
	}
	out, err := DecodeTemplate(id, v)
	if err != nil {
		t.Fatalf("DecodeTemplate: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestRegisterTemplateDuplicate(t *testing.T) {
	id := Identifier{PackageID: "#wiretest", ModuleName: "Test.Registry", EntityName: "Dup"}
	if err := RegisterTemplate(id, widgetCodec()); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := RegisterTemplate(id, widgetCodec()); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestRegisterTemplateInvalid(t *testing.T) {
	if err := RegisterTemplate(Identifier{}, widgetCodec()); err == nil {
		t.Fatal("zero identifier should fail")
	}
	id := Identifier{PackageID: "#wiretest", ModuleName: "Test.Registry", EntityName: "NoDecode"}
	if err := RegisterTemplate(id, TemplateCodec{Encode: widgetCodec().Encode}); err == nil {
		t.Fatal("missing Decode should fail")
	}
}

func TestUnknownTemplate(t *testing.T) {
	id := Identifier{PackageID: "#wiretest", ModuleName: "Test.Registry", EntityName: "Unknown"}
	if _, err := EncodeTemplate(id, widget{}); !IsKind(err, KindSchemaMismatch) {
		t.Fatalf("kind = %v, want SchemaMismatch", err)
	}
	if _, err := DecodeTemplate(id, Record()); !IsKind(err, KindSchemaMismatch) {
		t.Fatalf("kind = %v, want SchemaMismatch", err)
	}
}

func TestUnknownChoice(t *testing.T) {
	id := Identifier{PackageID: "#wiretest", ModuleName: "Test.Registry", EntityName: "Widget"}
	if _, err := EncodeChoiceArgument(id, "Widget_Frob", nil); !IsKind(err, KindSchemaMismatch) {
		t.Fatalf("kind = %v, want SchemaMismatch", err)
	}
	if _, err := DecodeChoiceResult(id, "Widget_Frob", Text("x")); !IsKind(err, KindSchemaMismatch) {
		t.Fatalf("kind = %v, want SchemaMismatch", err)
	}
}

func TestRegisterChoice(t *testing.T) {
	id := Identifier{PackageID: "#wiretest", ModuleName: "Test.Registry", EntityName: "Choices"}
	codec := ChoiceCodec{
		EncodeArg:    func(arg any) (*structpb.Value, error) { return Text(arg.(string)), nil },
		DecodeArg:    func(v *structpb.Value) (any, error) { return AsText(v) },
		DecodeResult: func(v *structpb.Value) (any, error) { return AsText(v) },
	}
	MustRegisterChoice(id, "Choices_Pick", codec)

	if err := RegisterChoice(id, "Choices_Pick", codec); err == nil {
		t.Fatal("duplicate choice registration should fail")
	}
	if err := RegisterChoice(id, "", codec); err == nil {
		t.Fatal("empty choice name should fail")
	}

	v, err := EncodeChoiceArgument(id, "Choices_Pick", "arg")
	if err != nil {
		t.Fatalf("EncodeChoiceArgument: %v", err)
	}
	out, err := DecodeChoiceArgument(id, "Choices_Pick", v)
	if err != nil || out != "arg" {
		t.Fatalf("DecodeChoiceArgument = %v, %v", out, err)
	}
}
