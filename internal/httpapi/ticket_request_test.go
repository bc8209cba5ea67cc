package httpapi

import "testing"

func TestDecodeStrictRejectsUnknownField(t *testing.T) {
	body := []byte(`{"kubeconfig":"kc","namespace":"default","pod":"pod-a","rogue":"x"}`)
	if _, err := decodeStrict(body); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDecodeStrictRejectsMalformedJSON(t *testing.T) {
	if _, err := decodeStrict([]byte(`{`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestBindRequiresKubeconfigNamespacePod(t *testing.T) {
	fields, err := decodeStrict([]byte(`{"kubeconfig":"kc","namespace":"default"}`))
	if err != nil {
		t.Fatalf("decodeStrict: %v", err)
	}
	if _, err := fields.bind(); err == nil {
		t.Fatal("expected error for missing pod field")
	}
}

func TestBindRejectsBlankRequiredField(t *testing.T) {
	fields, err := decodeStrict([]byte(`{"kubeconfig":"  ","namespace":"default","pod":"pod-a"}`))
	if err != nil {
		t.Fatalf("decodeStrict: %v", err)
	}
	if _, err := fields.bind(); err == nil {
		t.Fatal("expected error for whitespace-only kubeconfig")
	}
}

func TestBindSuccess(t *testing.T) {
	fields, err := decodeStrict([]byte(`{"kubeconfig":"kc","namespace":"default","pod":"pod-a","container":"main","command":["/bin/sh","-c","top"]}`))
	if err != nil {
		t.Fatalf("decodeStrict: %v", err)
	}
	req, err := fields.bind()
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if req.Kubeconfig != "kc" || req.Namespace != "default" || req.Pod != "pod-a" || req.Container != "main" {
		t.Errorf("req = %+v, unexpected field values", req)
	}
	if len(req.Command) != 3 || req.Command[2] != "top" {
		t.Errorf("req.Command = %v, want 3-element command", req.Command)
	}
}

func TestBindRejectsEmptyCommandArray(t *testing.T) {
	fields, err := decodeStrict([]byte(`{"kubeconfig":"kc","namespace":"default","pod":"pod-a","command":[]}`))
	if err != nil {
		t.Fatalf("decodeStrict: %v", err)
	}
	if _, err := fields.bind(); err == nil {
		t.Fatal("expected error for empty command array")
	}
}

func TestBindRejectsBlankCommandElement(t *testing.T) {
	fields, err := decodeStrict([]byte(`{"kubeconfig":"kc","namespace":"default","pod":"pod-a","command":["/bin/sh",""]}`))
	if err != nil {
		t.Fatalf("decodeStrict: %v", err)
	}
	if _, err := fields.bind(); err == nil {
		t.Fatal("expected error for blank command element")
	}
}

func TestBindOmitsOptionalFieldsWhenAbsent(t *testing.T) {
	fields, err := decodeStrict([]byte(`{"kubeconfig":"kc","namespace":"default","pod":"pod-a"}`))
	if err != nil {
		t.Fatalf("decodeStrict: %v", err)
	}
	req, err := fields.bind()
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if req.Container != "" || req.Command != nil {
		t.Errorf("req = %+v, want zero-value optional fields", req)
	}
}
