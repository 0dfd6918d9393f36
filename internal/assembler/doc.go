// Package assembler builds budget-bounded context bundles from ranked
// index results.
//
// Assembly is a pure function of the query and the current index state:
// embed the query text, take the top K entries by cosine similarity,
// collapse duplicates sharing a symbol name and kind, then fill the byte
// budget greedily in rank order. An excerpt that does not fit whole is
// truncated to the remaining budget unless the cut would leave less than
// the minimum useful length, in which case it is skipped.
//
//	asm := assembler.New(cat, idx, emb, assembler.Options{})
//
//	resp, err := asm.Assemble(ctx, assembler.Request{
//	    ProjectID: project.ID,
//	    Query: types.Query{
//	        Text:   "shopping cart total calculation",
//	        Budget: 8192,
//	    },
//	})
//
// Assembled bundles are cached per query fingerprint; the engine purges
// the cache after every sync.
package assembler
