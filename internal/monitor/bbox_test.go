package monitor

import "testing"

func TestComputeBboxStatesWinOverRegion(t *testing.T) {
	bbox, err := ComputeBbox("northeast", []string{"CA"})
	if err != nil {
		t.Fatalf("ComputeBbox() error = %v", err)
	}
	if bbox == nil {
		t.Fatal("ComputeBbox() = nil, want California's bbox")
	}
	if want := stateBboxes["CA"]; *bbox != want {
		t.Errorf("ComputeBbox() = %+v, want %+v (states should win over region)", *bbox, want)
	}
}

func TestComputeBboxMergesMultipleStates(t *testing.T) {
	bbox, err := ComputeBbox("", []string{"OH", "PA"})
	if err != nil {
		t.Fatalf("ComputeBbox() error = %v", err)
	}
	oh, pa := stateBboxes["OH"], stateBboxes["PA"]
	wantMinLat := min(oh.MinLat, pa.MinLat)
	wantMaxLon := max(oh.MaxLon, pa.MaxLon)
	if bbox.MinLat != wantMinLat || bbox.MaxLon != wantMaxLon {
		t.Errorf("ComputeBbox() = %+v, want a union of OH and PA", *bbox)
	}
}

func TestComputeBboxAllMeansNoFilter(t *testing.T) {
	bbox, err := ComputeBbox("all", nil)
	if err != nil {
		t.Fatalf("ComputeBbox() error = %v", err)
	}
	if bbox != nil {
		t.Errorf("ComputeBbox() = %+v, want nil for region=all", bbox)
	}
}

func TestComputeBboxEmptyMeansNoFilter(t *testing.T) {
	bbox, err := ComputeBbox("", nil)
	if err != nil {
		t.Fatalf("ComputeBbox() error = %v", err)
	}
	if bbox != nil {
		t.Errorf("ComputeBbox() = %+v, want nil when neither region nor states given", bbox)
	}
}

func TestComputeBboxUnknownRegionErrors(t *testing.T) {
	if _, err := ComputeBbox("atlantis", nil); err == nil {
		t.Error("ComputeBbox() error = nil, want an error for an unknown region")
	}
}

func TestComputeBboxUnknownStateErrors(t *testing.T) {
	if _, err := ComputeBbox("", []string{"ZZ"}); err == nil {
		t.Error("ComputeBbox() error = nil, want an error for an unknown state code")
	}
}
