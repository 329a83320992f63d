package dclass

import "testing"

func testClass() *Class {
	return NewClass(100, "DistributedToon", []*Field{
		{Number: 1, Name: "setName", Kind: KindAtomic, Flags: FlagRequired | FlagDB | FlagBroadcast, Default: Str("")},
		{Number: 2, Name: "setDNAString", Kind: KindAtomic, Flags: FlagRequired | FlagDB, Default: Blob(nil)},
		{Number: 3, Name: "setFriendsList", Kind: KindAtomic, Flags: FlagDB, Default: ListOf()},
		{Number: 4, Name: "setTalk", Kind: KindAtomic, Flags: FlagOwnSend | FlagOwnRecv},
	})
}

func TestPackRequiredUsesDefaultWhenAbsent(t *testing.T) {
	c := testClass()
	fields := FieldValues{"setName": Str("Mickey")}

	packed := PackRequired(c, fields)

	// setName ("Mickey") then setDNAString default (empty blob).
	want := append(Pack(Str("Mickey")), Pack(Blob(nil))...)
	if string(packed) != string(want) {
		t.Fatalf("PackRequired mismatch: got %v want %v", packed, want)
	}
}

func TestPackOtherOnlyEmitsPresentDBFields(t *testing.T) {
	c := testClass()
	fields := FieldValues{
		"setName":         Str("Mickey"),  // required, excluded from "other"
		"setFriendsList":  ListOf(Uint64v(7)),
	}

	packed := PackOther(c, fields)
	if len(packed) < 2 {
		t.Fatalf("packed too short: %v", packed)
	}
	count := uint16(packed[0]) | uint16(packed[1])<<8
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}

func TestPackFieldUnpackFieldRoundTrip(t *testing.T) {
	c := testClass()
	packed, err := PackField(c, "setFriendsList", ListOf(Uint64v(1), Uint64v(2)))
	if err != nil {
		t.Fatal(err)
	}
	v, err := UnpackField(c, "setFriendsList", packed)
	if err != nil {
		t.Fatal(err)
	}
	if len(v.List) != 2 || v.List[0].UInt != 1 || v.List[1].UInt != 2 {
		t.Fatalf("unexpected value: %+v", v)
	}
}

func TestPackFieldUnknownField(t *testing.T) {
	c := testClass()
	if _, err := PackField(c, "noSuchField", None()); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
