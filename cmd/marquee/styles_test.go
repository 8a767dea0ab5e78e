package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// setMockTTY sets the TTY override for tests and returns a cleanup function.
func setMockTTY(value bool) func() {
	forceTTY = &value
	return func() { forceTTY = nil }
}

func TestPrintStyled_NonTTY_PlainText(t *testing.T) {
	defer setMockTTY(false)()

	var buf bytes.Buffer
	printSuccess(&buf, "Added %s", "Heat")
	if got := buf.String(); got != iconSuccess+" Added Heat\n" {
		t.Errorf("printSuccess = %q", got)
	}
}

func TestPrintField_NonTTY(t *testing.T) {
	defer setMockTTY(false)()

	var buf bytes.Buffer
	printField(&buf, "ID:", "7")
	if got := buf.String(); got != "ID: 7\n" {
		t.Errorf("printField = %q", got)
	}
}

func TestRenderPanel(t *testing.T) {
	defer setMockTTY(false)()
	if got := renderPanel("Library", "Movies: 1"); got != "Library\nMovies: 1" {
		t.Errorf("plain panel = %q", got)
	}
	if got := renderPanel("", "Movies: 1"); got != "Movies: 1" {
		t.Errorf("untitled plain panel = %q", got)
	}

	setMockTTY(true)
	got := renderPanel("Library", "Movies: 1")
	if !strings.Contains(got, "Library") || !strings.Contains(got, "Movies: 1") {
		t.Errorf("TTY panel should keep its content:\n%s", got)
	}
	if !strings.Contains(got, "╭") {
		t.Errorf("TTY panel should have a rounded border:\n%s", got)
	}
}

func TestFavoriteMark(t *testing.T) {
	defer setMockTTY(false)()

	if favoriteMark(false) != " " {
		t.Error("non-favorite should render a blank")
	}
	if favoriteMark(true) != iconFavorite {
		t.Errorf("favorite = %q, want %q", favoriteMark(true), iconFavorite)
	}
}

func TestOutputError_NonTTY(t *testing.T) {
	defer setMockTTY(false)()

	var buf bytes.Buffer
	outputError(&buf, errors.New("boom"))
	if got := buf.String(); got != "Error: boom\n" {
		t.Errorf("outputError = %q", got)
	}
}
