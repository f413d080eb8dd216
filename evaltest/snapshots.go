// Copyright © 2018 The ELPS authors

package evaltest

// CounterSnapshot describes a process suspended in a method of app.Counter.
// Thread 1 is suspended in app.Counter.tick with the locals n and counter
// and the receiver object 1.  Thread 2 is running.
const CounterSnapshot = `
name: app
classes:
  - name: app.Counter
    fields: [{name: count, type: Int}]
    methods:
      - {name: next, result: Int, body: "count + 1"}
objects:
  - {id: 1, class: app.Counter, fields: {count: 3}}
threads:
  - id: 1
    name: main
    suspended: true
    frames:
      - method: app.Counter.tick
        file: Counter.kt
        line: 7
        this: {ref: 1}
        locals:
          - {name: n, type: Int, value: 4}
          - {name: counter, type: app.Counter, value: {ref: 1}}
        scope:
          language: kotlin
          locals:
            - {name: n, type: Int, mutable: true}
            - {name: counter, type: Counter}
          this:
            type: app.Counter
            properties: [{name: count, type: Int, mutable: true}]
          classes: {Counter: app.Counter}
  - id: 2
    name: worker
    suspended: false
    frames:
      - method: app.WorkerKt.run
        file: Worker.kt
        line: 3
`

// CoroutineSnapshot describes a process suspended while resuming a
// coroutine.  The frame of thread 1 holds the locals n and x and the
// continuation, and the variable a is spilled into the continuation.
const CoroutineSnapshot = `
name: loader
objects:
  - {id: 1, class: kotlin.coroutines.Continuation}
threads:
  - id: 1
    name: main
    suspended: true
    frames:
      - method: app.LoaderKt.load
        file: Loader.kt
        line: 12
        flags: {coroutineResume: true}
        locals:
          - {name: n, type: Int, value: 1}
          - {name: x, type: Int, value: 7}
          - {name: "$continuation", type: kotlin.coroutines.Continuation, value: {ref: 1}}
        spilled: {a: 5}
        scope:
          language: kotlin
          coroutineScope: true
          locals:
            - {name: n, type: Int}
            - {name: x, type: Any, mutable: true}
            - {name: a, type: Int, mutable: true}
          functions:
            - {name: delay, owner: kotlinx.coroutines.DelayKt, params: [Int], result: Unit, suspend: true}
`
