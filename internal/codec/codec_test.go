package codec

import "testing"

type sample struct {
	Name  string `json:"name" msgpack:"name"`
	Count int    `json:"count" msgpack:"count"`
}

func TestNewSelectsCodecByType(t *testing.T) {
	cases := []struct {
		typ  Type
		name string
	}{
		{TypeJSON, "json-stdlib"},
		{"", "json-stdlib"},
		{TypeMsgPack, "msgpack"},
	}
	for _, c := range cases {
		codec, err := New(c.typ)
		if err != nil {
			t.Fatalf("New(%q): %v", c.typ, err)
		}
		if codec.Name() != c.name {
			t.Errorf("New(%q).Name() = %q, want %q", c.typ, codec.Name(), c.name)
		}
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(Type("yaml")); err == nil {
		t.Fatal("expected an error for an unknown codec type")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, typ := range []Type{TypeJSON, TypeMsgPack} {
		c, err := New(typ)
		if err != nil {
			t.Fatalf("New(%q): %v", typ, err)
		}
		in := sample{Name: "ensemble-a", Count: 7}
		data, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("%s Marshal: %v", typ, err)
		}
		var out sample
		if err := c.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s Unmarshal: %v", typ, err)
		}
		if out != in {
			t.Errorf("%s round trip: got %+v, want %+v", typ, out, in)
		}
	}
}
