package utils

import (
	"encoding/json"
	"image"
	"testing"

	"go.viam.com/test"
)

func TestOptional(t *testing.T) {
	var unset Optional[int]
	test.That(t, unset.IsSet(), test.ShouldBeFalse)
	test.That(t, unset.OrElse(7), test.ShouldEqual, 7)
	test.That(t, None[int](), test.ShouldResemble, unset)

	five := Some(5)
	v, ok := five.Get()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 5)
	test.That(t, five.OrElse(7), test.ShouldEqual, 5)

	// a set zero value is distinct from unset
	zero := Some(0)
	test.That(t, zero.IsSet(), test.ShouldBeTrue)
	test.That(t, zero, test.ShouldNotResemble, unset)
}

func TestOptionalJSON(t *testing.T) {
	type record struct {
		Rect Optional[image.Rectangle] `json:"rect"`
		N    Optional[float64]         `json:"n"`
	}
	in := record{Rect: Some(image.Rect(1, 2, 3, 4))}
	data, err := json.Marshal(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, `"n":null`)

	var out record
	test.That(t, json.Unmarshal(data, &out), test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, in)

	test.That(t, json.Unmarshal([]byte(`{"n": "x"}`), &out), test.ShouldNotBeNil)
}
