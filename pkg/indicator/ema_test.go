package indicator

import (
	"math"
	"testing"
)

func TestEMA_NewEMA(t *testing.T) {
	ema, err := NewEMA(20)
	if err != nil {
		t.Fatalf("Failed to create EMA: %v", err)
	}
	if ema == nil {
		t.Fatal("EMA is nil")
	}
	if !math.IsNaN(ema.Value()) {
		t.Errorf("Expected NaN before the first observation, got %f", ema.Value())
	}

	_, err = NewEMA(0)
	if err == nil {
		t.Error("Expected error for span < 1")
	}
}

func TestEMA_Update(t *testing.T) {
	ema, _ := NewEMA(3)

	// First observation seeds the average
	if val := ema.Update(100.0); val != 100.0 {
		t.Errorf("Expected 100.0 for first observation, got %f", val)
	}
	if !ema.IsReady() {
		t.Error("EMA should be ready after first observation")
	}

	// alpha = 2/(3+1) = 0.5
	if val := ema.Update(110.0); val != 105.0 {
		t.Errorf("Expected 105.0, got %f", val)
	}
}

func TestEMA_Convergence(t *testing.T) {
	ema, _ := NewEMA(20)

	ema.Update(50.0)
	price := 100.0
	for i := 0; i < 200; i++ {
		val := ema.Update(price)
		if i > 150 && math.Abs(val-price) > 0.1 {
			t.Errorf("EMA should converge to price, got %f, expected %f", val, price)
		}
	}
}

func TestEMA_Reset(t *testing.T) {
	ema, _ := NewEMA(20)

	for i := 0; i < 10; i++ {
		ema.Update(100.0 + float64(i))
	}

	ema.Reset()

	if ema.IsReady() {
		t.Error("EMA should not be ready after reset")
	}
	if !math.IsNaN(ema.Value()) {
		t.Errorf("Expected NaN after reset, got %f", ema.Value())
	}
}

func TestEMA_IncreasingPrice(t *testing.T) {
	ema, _ := NewEMA(20)

	prev := math.Inf(-1)
	for i := 0; i < 50; i++ {
		price := 100.0 + float64(i)
		val := ema.Update(price)
		if val < prev {
			t.Errorf("EMA should be increasing, got %f < %f", val, prev)
		}
		if i > 0 && val >= price {
			t.Errorf("EMA should lag the price, got %f >= %f", val, price)
		}
		prev = val
	}
}

func TestEMA_HandleNaN(t *testing.T) {
	ema, _ := NewEMA(20)

	if val := ema.Update(math.NaN()); !math.IsNaN(val) {
		t.Errorf("Expected NaN before any valid observation, got %f", val)
	}
	if ema.IsReady() {
		t.Error("NaN must not seed the average")
	}

	ema.Update(100.0)
	if val := ema.Update(math.NaN()); val != 100.0 {
		t.Errorf("NaN should leave the previous value, got %f", val)
	}
	if val := ema.Update(math.Inf(1)); val != 100.0 {
		t.Errorf("Inf should leave the previous value, got %f", val)
	}
}

func TestEMA_GapDecaysPreviousValue(t *testing.T) {
	ema, _ := NewEMA(3)

	ema.Update(1.0)
	ema.Update(math.NaN())
	// old weight (1-0.5)^2 = 0.25 against 0.5 for the new observation
	if val := ema.Update(3.0); math.Abs(val-7.0/3.0) > 1e-12 {
		t.Errorf("Expected %f after a one-bar gap, got %f", 7.0/3.0, val)
	}

	// without further gaps the plain recurrence resumes
	if val := ema.Update(7.0/3.0 + 2); math.Abs(val-(7.0/3.0+1)) > 1e-12 {
		t.Errorf("Expected %f, got %f", 7.0/3.0+1, val)
	}
}
