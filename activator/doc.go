// Package activator provides construction strategies for godi.
//
// Reflect turns constructor functions into godi factories. Parameters are
// resolved one by one through the resolver handed to the factory, so cycle
// detection and lifetime checks keep working across constructors. A single
// parameter embedding dig.In is treated as a parameter object whose exported
// fields are resolved individually:
//
//	type HandlerParams struct {
//	    dig.In
//
//	    Logger  Logger
//	    Metrics Metrics    `optional:"true"`
//	    Hooks   []Hook     `multi:"true"`
//	    Skipped *Debugger  `inject:"-"`
//	}
//
// Table is a godi.Activator for decorator and open-generic bindings. Go
// cannot instantiate a generic type at runtime, so every closing the
// application resolves is listed up front:
//
//	table := activator.NewTable()
//	activator.Decorator(table, func(r godi.Resolver, inner Repository[User]) (*Cached[Repository[User]], error) {
//	    return NewCached(inner), nil
//	})
//
//	reg, err := collection.Build(godi.WithActivator(table))
package activator
