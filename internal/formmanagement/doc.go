// Package formmanagement coordinates deletion of forms and instances so
// that instances never lose the form row they resolve to.
package formmanagement
