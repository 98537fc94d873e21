// Package testutil holds file helpers and sample projects shared by tests
// that run the whole pipeline.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to a file in the real filesystem.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// CreateFileTree creates multiple files from a map of path -> content.
func CreateFileTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		WriteFile(t, filepath.Join(root, name), content)
	}
}

// RustProject writes RustFiles into a fresh temporary directory and returns it.
func RustProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	CreateFileTree(t, dir, RustFiles)
	return dir
}

// GoProject writes GoFiles into a fresh temporary directory and returns it.
func GoProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	CreateFileTree(t, dir, GoFiles)
	return dir
}

// RustFiles is a small binary crate. Live: main, process, helper, report,
// apply, double, CONFIG and load_settings, Circle and Square with their
// constructors and area methods. Dead: fetch_remote, the unused_entry ->
// unused_dep -> cycle_a <-> cycle_b chain, touch_registry -> REGISTRY ->
// build_registry, Shape::name, Triangle and unit_area. Everything under
// tests/ and in mod tests is test-only.
var RustFiles = map[string]string{
	"src/main.rs": `mod shapes;

use shapes::{Circle, Shape, Square};

lazy_static! {
    static ref CONFIG: Settings = load_settings();
    static ref REGISTRY: Registry = build_registry();
}

pub struct Settings {
    verbose: bool,
}

pub struct Registry;

fn load_settings() -> Settings {
    Settings { verbose: false }
}

fn build_registry() -> Registry {
    Registry
}

fn main() {
    let verbose = CONFIG.verbose;
    let total = process(&[1, 2, 3]);
    let circle = Circle::new(1.0);
    let square = Square::new(2.0);
    let shapes: Vec<&dyn Shape> = vec![&circle, &square];
    report(&shapes);
    let doubled = apply(double, total);
    if verbose {
        println!("{}", doubled);
    }
}

fn process(items: &[i32]) -> i32 {
    items.iter().map(|x| helper(*x)).sum()
}

fn helper(x: i32) -> i32 {
    x + 1
}

fn report(shapes: &[&dyn Shape]) {
    for s in shapes {
        println!("{}", s.area());
    }
}

fn apply<F: Fn(i32) -> i32>(f: F, v: i32) -> i32 {
    f(v)
}

fn double(x: i32) -> i32 {
    x * 2
}

async fn fetch_remote() -> i32 {
    0
}

fn unused_entry() {
    unused_dep();
}

fn unused_dep() {
    cycle_a();
}

fn cycle_a() {
    cycle_b();
}

fn cycle_b() {
    cycle_a();
}

fn touch_registry() -> bool {
    let _r = &*REGISTRY;
    true
}

#[cfg(test)]
mod tests {
    use super::*;

    #[test]
    fn test_helper() {
        assert_eq!(helper(1), 2);
        test_only_util();
    }

    fn test_only_util() {}
}
`,
	"src/shapes.rs": `pub trait Shape {
    fn area(&self) -> f64;

    fn name(&self) -> String {
        String::from("shape")
    }
}

pub struct Circle {
    radius: f64,
}

pub struct Square {
    side: f64,
}

pub struct Triangle;

impl Circle {
    pub fn new(radius: f64) -> Self {
        Circle { radius }
    }
}

impl Square {
    pub fn new(side: f64) -> Self {
        Square { side }
    }
}

impl Shape for Circle {
    fn area(&self) -> f64 {
        3.14 * self.radius * self.radius
    }
}

impl Shape for Square {
    fn area(&self) -> f64 {
        self.side * self.side
    }
}

fn unit_area() -> f64 {
    1.0
}
`,
	"tests/integration.rs": `#[test]
fn integration() {
    integration_helper();
}

fn integration_helper() {}

fn unused_fixture() {}
`,
}

// GoFiles is a small Go program. Live: main, the synthesized var init that
// takes serve as a value, run, and both Store implementations, which are
// reached only through the interface and so provisionally. Dead: legacy ->
// legacyHelper.
var GoFiles = map[string]string{
	"main.go": `package main

import "fmt"

type Store interface {
	Get(key string) string
}

type Mem struct{}

func (m *Mem) Get(key string) string { return key }

type Disk struct{}

func (d *Disk) Get(key string) string { return d.path(key) }
func (d *Disk) path(key string) string { return "/" + key }

var registry = map[string]func(){"serve": serve}

func main() {
	run(&Mem{})
	registry["serve"]()
}

func run(s Store) {
	fmt.Println(s.Get("k"))
}

func serve() {}

func legacy() { legacyHelper() }

func legacyHelper() {}
`,
	"main_test.go": `package main

import "testing"

func TestRun(t *testing.T) { run(&Disk{}) }
`,
}
