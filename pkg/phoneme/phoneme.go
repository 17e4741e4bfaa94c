// Package phoneme models ARPAbet transcriptions as used by the CMU
// Pronouncing Dictionary.
//
// A [Pronunciation] is an ordered list of [Phoneme] values. Vowels carry a
// [Stress] marker (unstressed, primary, secondary); consonants never do. The
// package knows the closed ARPAbet inventory, so transcriptions containing
// unknown symbols are rejected by [Parse].
//
// Everything in this package is pure and safe for concurrent use.
package phoneme

import (
	"fmt"
	"strings"
)

// Stress is the lexical stress marker attached to a vowel.
type Stress uint8

const (
	// Unstressed marks a vowel without stress (digit 0).
	Unstressed Stress = iota

	// Primary marks a vowel carrying primary stress (digit 1).
	Primary

	// Secondary marks a vowel carrying secondary stress (digit 2).
	Secondary
)

// Class groups phonemes by manner of articulation. Consonants of the same
// class are treated as interchangeable when comparing rhyme codas.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassVowel
	ClassStop
	ClassAffricate
	ClassFricative
	ClassNasal
	ClassLiquid
	ClassGlide
)

// String returns the lower-case class name.
func (c Class) String() string {
	switch c {
	case ClassVowel:
		return "vowel"
	case ClassStop:
		return "stop"
	case ClassAffricate:
		return "affricate"
	case ClassFricative:
		return "fricative"
	case ClassNasal:
		return "nasal"
	case ClassLiquid:
		return "liquid"
	case ClassGlide:
		return "glide"
	default:
		return "unknown"
	}
}

// inventory maps every ARPAbet symbol to its class.
var inventory = map[string]Class{
	"AA": ClassVowel, "AE": ClassVowel, "AH": ClassVowel, "AO": ClassVowel,
	"AW": ClassVowel, "AY": ClassVowel, "EH": ClassVowel, "ER": ClassVowel,
	"EY": ClassVowel, "IH": ClassVowel, "IY": ClassVowel, "OW": ClassVowel,
	"OY": ClassVowel, "UH": ClassVowel, "UW": ClassVowel,

	"P": ClassStop, "B": ClassStop, "T": ClassStop,
	"D": ClassStop, "K": ClassStop, "G": ClassStop,

	"CH": ClassAffricate, "JH": ClassAffricate,

	"F": ClassFricative, "V": ClassFricative, "TH": ClassFricative,
	"DH": ClassFricative, "S": ClassFricative, "Z": ClassFricative,
	"SH": ClassFricative, "ZH": ClassFricative, "HH": ClassFricative,

	"M": ClassNasal, "N": ClassNasal, "NG": ClassNasal,

	"L": ClassLiquid, "R": ClassLiquid,

	"W": ClassGlide, "Y": ClassGlide,
}

// ClassOf returns the class of an ARPAbet symbol (without stress digit).
// Unknown symbols report [ClassUnknown].
func ClassOf(symbol string) Class {
	return inventory[symbol]
}

// IsVowel reports whether symbol is one of the fifteen ARPAbet vowels.
func IsVowel(symbol string) bool {
	return inventory[symbol] == ClassVowel
}

// Phoneme is a single ARPAbet symbol. Stress is only meaningful for vowels.
type Phoneme struct {
	Symbol string
	Stress Stress
}

// IsVowel reports whether p is a vowel.
func (p Phoneme) IsVowel() bool { return IsVowel(p.Symbol) }

// Class returns the articulation class of p.
func (p Phoneme) Class() Class { return ClassOf(p.Symbol) }

// String renders p in CMU notation, e.g. "EH1" or "T".
func (p Phoneme) String() string {
	if !p.IsVowel() {
		return p.Symbol
	}
	return fmt.Sprintf("%s%d", p.Symbol, p.Stress)
}

// ParsePhoneme parses a single CMU token such as "AH0" or "NG". Vowels without
// a digit are treated as unstressed.
func ParsePhoneme(token string) (Phoneme, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return Phoneme{}, fmt.Errorf("phoneme: empty token")
	}

	symbol := token
	stress := Unstressed
	if last := token[len(token)-1]; last >= '0' && last <= '9' {
		symbol = token[:len(token)-1]
		switch last {
		case '0':
			stress = Unstressed
		case '1':
			stress = Primary
		case '2':
			stress = Secondary
		default:
			return Phoneme{}, fmt.Errorf("phoneme: invalid stress digit in %q", token)
		}
	}

	class, ok := inventory[symbol]
	if !ok {
		return Phoneme{}, fmt.Errorf("phoneme: unknown symbol %q", token)
	}
	if class != ClassVowel && symbol != token {
		return Phoneme{}, fmt.Errorf("phoneme: consonant %q cannot carry stress", token)
	}
	return Phoneme{Symbol: symbol, Stress: stress}, nil
}
