package domain

import "testing"

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"todo", StatusTodo},
		{"ToDo", StatusTodo},
		{"  TODO  ", StatusTodo},
		{"inprogress", StatusInProgress},
		{"InProgress", StatusInProgress},
		{"done", StatusDone},
		{"blocked", StatusBlocked},
		{"bogus", Status("BOGUS")},
	}
	for _, tt := range tests {
		if got := NormalizeStatus(tt.in); got != tt.want {
			t.Fatalf("NormalizeStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if NormalizeStatus("bogus").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
	for _, s := range Statuses {
		if !s.Valid() {
			t.Fatalf("canonical status %s reported invalid", s)
		}
	}
}

func TestBoardCloneIsDeep(t *testing.T) {
	b := &Board{
		ProjectID: "p1",
		Columns: []BoardColumn{
			{Column: Column{ID: "c1", Name: "To Do"}, Tasks: []Task{{ID: "t1"}, {ID: "t2"}}},
			{Column: Column{ID: "c2", Name: "Done"}},
		},
	}

	clone := b.Clone()
	clone.Columns[0].Tasks[0].Title = "changed"
	clone.Columns[0].Tasks = append(clone.Columns[0].Tasks, Task{ID: "t3"})

	if b.Columns[0].Tasks[0].Title != "" {
		t.Fatal("clone mutation leaked into original task")
	}
	if len(b.Columns[0].Tasks) != 2 {
		t.Fatalf("clone append leaked into original, len=%d", len(b.Columns[0].Tasks))
	}

	var nilBoard *Board
	if nilBoard.Clone() != nil {
		t.Fatal("cloning nil board should return nil")
	}
}

func TestBoardFindTask(t *testing.T) {
	b := &Board{Columns: []BoardColumn{
		{Column: Column{ID: "c1"}, Tasks: []Task{{ID: "t1"}}},
		{Column: Column{ID: "c2"}, Tasks: []Task{{ID: "t2"}, {ID: "t3"}}},
	}}

	ci, ti := b.FindTask("t3")
	if ci != 1 || ti != 1 {
		t.Fatalf("FindTask(t3) = (%d, %d), want (1, 1)", ci, ti)
	}
	ci, ti = b.FindTask("missing")
	if ci != -1 || ti != -1 {
		t.Fatalf("FindTask(missing) = (%d, %d), want (-1, -1)", ci, ti)
	}
}
