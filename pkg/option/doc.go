// Package option resolves a recipe's declared options against a target platform.
//
// An option schema is plain data: a list of declarations ([Decl]) with a
// domain and a default, and a list of pruning rules ([Rule]) that remove an
// option when a platform setting or another option's value makes it
// meaningless. The classic example is position-independent code:
//
//	schema := option.Schema{
//	    Options: []option.Decl{
//	        {Name: "shared", Kind: option.Bool, Default: option.BoolValue(false)},
//	        {Name: "fPIC", Kind: option.Bool, Default: option.BoolValue(true)},
//	    },
//	    Rules: []option.Rule{
//	        {Target: "fPIC", Settings: map[string][]string{"os": {"Windows"}}},
//	        {Target: "fPIC", When: map[string]option.Value{"shared": option.BoolValue(true)}},
//	    },
//	}
//	set, err := option.Resolve(schema, platform.Host(), map[string]string{"shared": "True"})
//
// Resolution never mutates the schema; it is a pure filter that produces a
// frozen [Set]. Resolving the same schema, platform and overrides twice
// yields equal sets.
package option
