package main

import (
	"fmt"
	"log"

	"github.com/mhutchcroft/sitework/internal/store"
)

func main() {
	db, err := store.DB()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	_, err = db.Exec(`
		INSERT INTO users (id, name, email, role)
		VALUES
			('a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11', 'Marta Vogel', 'marta@example.com', 'manager'),
			('a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a12', 'Deniz Aydin', 'deniz@example.com', 'member')
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`)
	if err != nil {
		log.Fatal("Failed to create users: ", err)
	}
	fmt.Println("✅ Users seeded")

	_, err = db.Exec(`
		INSERT INTO projects (id, name, description, total_budget)
		VALUES (
			'b0eebc99-9c0b-4ef8-bb6d-6bb9bd380a21',
			'Riverside Depot',
			'Two-storey storage depot with loading bay',
			250000
		)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`)
	if err != nil {
		log.Fatal("Failed to create project: ", err)
	}
	fmt.Println("✅ Project 'Riverside Depot' seeded")

	_, err = db.Exec(`
		INSERT INTO services (id, name, unit, unit_labor_cost, unit_material_cost, unit_equipment_cost)
		VALUES
			('c0eebc99-9c0b-4ef8-bb6d-6bb9bd380a31', 'Concrete pour', 'm3', 45, 110, 20),
			('c0eebc99-9c0b-4ef8-bb6d-6bb9bd380a32', 'Brickwork', 'm2', 35, 28, 5),
			('c0eebc99-9c0b-4ef8-bb6d-6bb9bd380a33', 'Excavation', 'm3', 18, 0, 40)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`)
	if err != nil {
		log.Fatal("Failed to create services: ", err)
	}
	fmt.Println("✅ Service catalog seeded")

	_, err = db.Exec(`
		INSERT INTO materials (id, name, unit, current_stock, minimum_stock, unit_price, supplier)
		VALUES
			('d0eebc99-9c0b-4ef8-bb6d-6bb9bd380a41', 'Cement 42.5R', 'bag', 180, 50, 7.20, 'Hartmann Baustoffe'),
			('d0eebc99-9c0b-4ef8-bb6d-6bb9bd380a42', 'Rebar 12mm', 'ton', 6, 2, 640, 'Stahlwerk Nord'),
			('d0eebc99-9c0b-4ef8-bb6d-6bb9bd380a43', 'Sand 0-2mm', 'm3', 40, 15, 22, 'Kieswerk Elbe')
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`)
	if err != nil {
		log.Fatal("Failed to create materials: ", err)
	}
	fmt.Println("✅ Materials seeded")

	_, err = db.Exec(`
		INSERT INTO tasks (id, project_id, name, description, status)
		VALUES (
			'e0eebc99-9c0b-4ef8-bb6d-6bb9bd380a51',
			'b0eebc99-9c0b-4ef8-bb6d-6bb9bd380a21',
			'Foundation',
			'Strip footings and slab',
			'in_progress'
		)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`)
	if err != nil {
		log.Fatal("Failed to create task: ", err)
	}
	fmt.Println("✅ Task 'Foundation' seeded")

	fmt.Println("\n🎉 Seed data ready!")
}
