// Package geosxml preprocesses GEOS XML input decks.
//
// A deck may split itself across files, declare named parameters, write quantities with physical
// units and compute attribute values with small arithmetic expressions. The preprocessor expands
// all of that into a flat document whose attributes hold only literal values, ready for the
// simulator.
//
// # Quick Start
//
//	expander := geosxml.New()
//	output, err := expander.CompileFile("deck.xml", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("wrote", output)
//
// # Deck Syntax
//
// Inclusion:
//
//	<Included>
//	  <File name="./mesh.xml"/>
//	</Included>
//
// Parameters and references:
//
//	<Parameters>
//	  <Parameter name="L" value="3.0"/>
//	</Parameters>
//	<Box xMax="{ $L$, 1, 1 }"/>
//
// Expressions and units:
//
//	<Mesh nx="`$L$ * 2`" length="`2 m + 200 cm`"/>
//
// # Passes
//
// Expansion runs three passes in a fixed order:
//
//  1. Inclusion: every <Included> node is replaced by the root children of the files it names.
//  2. Parameters: <Parameters> blocks are collected and removed, then $name$ tokens are replaced.
//  3. Expressions: delimited expressions are evaluated and replaced by their result.
//
// Errors from a pass carry the file, node path and attribute they were raised at; see
// LocationError.
//
// # Configuration
//
// Config holds the limits, delimiters and function allow-list. It can be loaded from YAML with
// LoadConfigFile or from GEOSXML_* environment variables with ConfigFromEnvironment.
package geosxml
