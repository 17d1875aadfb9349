package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse tokenises and parses a filter expression (spec §4.4.3 grammar:
// expr := or; or := and ("OR" and)*; and := not ("AND" not)*;
// not := "NOT"? atom; atom := "(" expr ")" | condition).
func Parse(expr string) (Expr, error) {
	p := &parser{lex: newLexer(expr)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tEOF {
		return nil, fmt.Errorf("unexpected trailing token %q", p.tok.text)
	}
	return e, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) keyword() string {
	if p.tok.kind != tIdent {
		return ""
	}
	return keywords[strings.ToLower(p.tok.text)]
}

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword() == "OR" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.keyword() == "AND" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.keyword() == "NOT" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Expr, error) {
	if p.tok.kind == tLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tRParen {
			return nil, fmt.Errorf("expected ')', got %q", p.tok.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return e, nil
	}
	return p.parseCondition()
}

func (p *parser) parseCondition() (Expr, error) {
	if p.tok.kind != tIdent {
		return nil, fmt.Errorf("expected field name or '(', got %q", p.tok.text)
	}

	switch p.tok.text {
	case "_geoRadius":
		return p.parseGeoRadius()
	case "_geoBoundingBox":
		return p.parseGeoBoundingBox()
	}

	field := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch p.keyword() {
	case "IN":
		return p.parseIn(field)
	case "EXISTS":
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &existsExpr{field: field}, nil
	case "NOT":
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.keyword() != "EXISTS" {
			return nil, fmt.Errorf("expected EXISTS after %q NOT, got %q", field, p.tok.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &existsExpr{field: field, negate: true}, nil
	case "IS":
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch p.keyword() {
		case "NULL":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &isNullExpr{field: field}, nil
		case "EMPTY":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &isEmptyExpr{field: field}, nil
		}
		return nil, fmt.Errorf("expected NULL or EMPTY after %q IS, got %q", field, p.tok.text)
	case "TO":
		if err := p.advance(); err != nil {
			return nil, err
		}
		low, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		high, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &rangeExpr{field: field, low: low, high: high}, nil
	case "CONTAINS":
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &containsExpr{field: field, value: v}, nil
	}

	if p.tok.kind != tOp {
		return nil, fmt.Errorf("expected operator after field %q, got %q", field, p.tok.text)
	}
	op := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &cmpExpr{field: field, op: op, value: v}, nil
}

func (p *parser) parseIn(field string) (Expr, error) {
	if err := p.advance(); err != nil { // consume IN
		return nil, err
	}
	if p.tok.kind != tLBracket {
		return nil, fmt.Errorf("expected '[' after IN, got %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var values []Value
	for p.tok.kind != tRBracket {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.tok.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.tok.kind != tRBracket {
		return nil, fmt.Errorf("expected ']' to close IN list, got %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &inExpr{field: field, values: values}, nil
}

func (p *parser) parseValue() (Value, error) {
	switch p.tok.kind {
	case tNumber:
		n, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return Value{}, err
		}
		if err := p.advance(); err != nil {
			return Value{}, err
		}
		return Value{IsNumber: true, Num: n}, nil
	case tString, tIdent:
		s := p.tok.text
		if err := p.advance(); err != nil {
			return Value{}, err
		}
		return Value{Str: s}, nil
	}
	return Value{}, fmt.Errorf("expected a value, got %q", p.tok.text)
}

func (p *parser) parseNumber() (float64, error) {
	v, err := p.parseValue()
	if err != nil {
		return 0, err
	}
	if !v.IsNumber {
		return 0, fmt.Errorf("expected a number, got %q", v.Str)
	}
	return v.Num, nil
}

func (p *parser) expectComma() error {
	if p.tok.kind != tComma {
		return fmt.Errorf("expected ',', got %q", p.tok.text)
	}
	return p.advance()
}

func (p *parser) parseGeoRadius() (Expr, error) {
	if err := p.advance(); err != nil { // consume _geoRadius
		return nil, err
	}
	if p.tok.kind != tLParen {
		return nil, fmt.Errorf("expected '(' after _geoRadius, got %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	lat, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	if err := p.expectComma(); err != nil {
		return nil, err
	}
	lng, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	if err := p.expectComma(); err != nil {
		return nil, err
	}
	meters, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tRParen {
		return nil, fmt.Errorf("expected ')' to close _geoRadius, got %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &geoRadiusExpr{lat: lat, lng: lng, meters: meters}, nil
}

func (p *parser) parseLatLngPair() (float64, float64, error) {
	if p.tok.kind != tLBracket {
		return 0, 0, fmt.Errorf("expected '[', got %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return 0, 0, err
	}
	lat, err := p.parseNumber()
	if err != nil {
		return 0, 0, err
	}
	if err := p.expectComma(); err != nil {
		return 0, 0, err
	}
	lng, err := p.parseNumber()
	if err != nil {
		return 0, 0, err
	}
	if p.tok.kind != tRBracket {
		return 0, 0, fmt.Errorf("expected ']', got %q", p.tok.text)
	}
	return lat, lng, p.advance()
}

func (p *parser) parseGeoBoundingBox() (Expr, error) {
	if err := p.advance(); err != nil { // consume _geoBoundingBox
		return nil, err
	}
	if p.tok.kind != tLParen {
		return nil, fmt.Errorf("expected '(' after _geoBoundingBox, got %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	neLat, neLng, err := p.parseLatLngPair()
	if err != nil {
		return nil, err
	}
	if err := p.expectComma(); err != nil {
		return nil, err
	}
	swLat, swLng, err := p.parseLatLngPair()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tRParen {
		return nil, fmt.Errorf("expected ')' to close _geoBoundingBox, got %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &geoBBoxExpr{neLat: neLat, neLng: neLng, swLat: swLat, swLng: swLng}, nil
}
